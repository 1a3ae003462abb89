// Package ctxtimer keeps named stopwatches in the context, read against the
// context's clock.
package ctxtimer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
)

type Timer struct {
	m     sync.Mutex
	start map[string]time.Time
}

func New() *Timer {
	return &Timer{start: make(map[string]time.Time)}
}

func (t *Timer) Mark(name string, at time.Time) {
	t.m.Lock()
	defer t.m.Unlock()

	t.start[name] = at
}

func (t *Timer) Elapsed(name string, at time.Time) (time.Duration, bool) {
	t.m.Lock()
	defer t.m.Unlock()

	start, ok := t.start[name]
	if !ok {
		return 0, false
	}

	return at.Sub(start), true
}

// context registration

var timerKey int

func WithTimer(ctx context.Context, t *Timer) context.Context {
	if t == nil {
		t = New()
	}

	return context.WithValue(ctx, &timerKey, t)
}

func GetTimer(ctx context.Context) *Timer {
	if v := ctx.Value(&timerKey); v != nil {
		return v.(*Timer)
	}

	return nil
}

// Start marks name at the context clock's current time. Without a timer in
// the context it does nothing.
func Start(ctx context.Context, name string) {
	if t := GetTimer(ctx); t != nil {
		t.Mark(name, ctxclock.Now(ctx))
	}
}

// Elapsed reports the time since name was started. The second result is
// false if it never was.
func Elapsed(ctx context.Context, name string) (time.Duration, bool) {
	if t := GetTimer(ctx); t != nil {
		return t.Elapsed(name, ctxclock.Now(ctx))
	}

	return 0, false
}

// middleware

const requestTimer = "ctxtimer.request"

func Register() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithTimer(r.Context(), New())))
	}
}

// AddLoggerHooks adds the request's duration to its log line.
func AddLoggerHooks() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(ctxlogger.AddHookPair(
			r.Context(),
			func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
				Start(r.Context(), requestTimer)
				return l
			},
			func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
				if d, ok := Elapsed(r.Context(), requestTimer); ok {
					return l.WithField("http.duration", d)
				}

				return l
			},
		)))
	}
}
