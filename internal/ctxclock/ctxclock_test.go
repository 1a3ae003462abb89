package ctxclock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/urfave/negroni/v2"

	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
)

func TestStatic(t *testing.T) {
	a := assert.New(t)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithClock(context.Background(), Static(at))

	a.Equal(at, Now(ctx))
	a.Equal(at, Now(ctx))
}

func TestNowWithoutClock(t *testing.T) {
	a := assert.New(t)

	before := time.Now()
	now := Now(context.Background())

	a.False(now.Before(before))
	a.Equal(Real(), GetClock(WithClock(context.Background(), nil)))
}

func TestStepped(t *testing.T) {
	a := assert.New(t)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Stepped(at, time.Second)

	a.Equal(at, c.Now())
	a.Equal(at.Add(time.Second), c.Now())
	a.Equal(at.Add(2*time.Second), c.Now())
}

func TestAddLoggerHooks(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	n := negroni.New()
	n.UseFunc(ctxlogger.Register(logger))
	n.UseFunc(Register(Static(at)))
	n.UseFunc(AddLoggerHooks())
	n.UseFunc(ctxlogger.Log())
	n.UseHandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})

	n.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if e := hook.LastEntry(); a.NotNil(e) {
		a.Equal("2024-03-01T12:00:00Z", e.Data["http.request_start"])
	}
}
