// Package ctxclock puts the source of "now" in the context so handlers,
// jobs and the store can be run against a fixed or stepping clock in tests.
package ctxclock

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
)

type Clock interface {
	Now() time.Time
}

// context registration

var clockKey int

func WithClock(ctx context.Context, c Clock) context.Context {
	if c == nil {
		c = Real()
	}

	return context.WithValue(ctx, &clockKey, c)
}

// GetClock falls back to the wall clock.
func GetClock(ctx context.Context) Clock {
	if v := ctx.Value(&clockKey); v != nil {
		return v.(Clock)
	}

	return Real()
}

func Now(ctx context.Context) time.Time {
	return GetClock(ctx).Now()
}

// middleware

func Register(c Clock) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithClock(r.Context(), c)))
	}
}

// AddLoggerHooks stamps the request log line with the time it arrived.
func AddLoggerHooks() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(ctxlogger.AddHookPair(
			r.Context(),
			func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
				return l.WithField("http.request_start", Now(r.Context()).Format(time.RFC3339))
			},
			nil,
		)))
	}
}

// clocks

type realClock struct{}

func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

type staticClock struct{ t time.Time }

func Static(t time.Time) Clock { return staticClock{t: t} }

func (c staticClock) Now() time.Time { return c.t }

// SteppedClock starts at a fixed time and moves forward by a fixed step every
// time it's read.
type SteppedClock struct {
	m    sync.Mutex
	next time.Time
	step time.Duration
}

func Stepped(start time.Time, step time.Duration) *SteppedClock {
	return &SteppedClock{next: start, step: step}
}

func (c *SteppedClock) Now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()

	t := c.next
	c.next = c.next.Add(c.step)

	return t
}
