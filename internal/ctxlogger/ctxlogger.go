// Package ctxlogger carries a logrus logger through request and job contexts,
// and logs one line per finished http request.
package ctxlogger

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "x-request-id"

// context registration

var loggerKey int

func WithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, &loggerKey, l)
}

func GetLogger(ctx context.Context) logrus.FieldLogger {
	if v := ctx.Value(&loggerKey); v != nil {
		return v.(logrus.FieldLogger)
	}

	return logrus.StandardLogger()
}

var requestIDKey int

func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(&requestIDKey).(string); ok {
		return v
	}

	return ""
}

// hooks

// HookFunc decorates the request logger. Before funcs run as the request
// arrives, after funcs run once the handler has returned.
type HookFunc func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger

type hookPair struct {
	before, after HookFunc
}

type hookList struct {
	a []hookPair
}

var hookListKey int

func getHookList(ctx context.Context) *hookList {
	if v := ctx.Value(&hookListKey); v != nil {
		return v.(*hookList)
	}

	return nil
}

// AddHookPair registers a before/after pair with the request's log line.
// Either func may be nil. Outside of Register this is a no-op.
func AddHookPair(ctx context.Context, before, after HookFunc) context.Context {
	if hooks := getHookList(ctx); hooks != nil {
		hooks.a = append(hooks.a, hookPair{before: before, after: after})
	}

	return ctx
}

func (h *hookList) run(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger, after bool) logrus.FieldLogger {
	if h == nil {
		return l
	}

	for _, p := range h.a {
		fn := p.before
		if after {
			fn = p.after
		}
		if fn != nil {
			l = fn(rw, r, l)
		}
	}

	return l
}

// middleware

func Register(l logrus.FieldLogger) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		ctx := context.WithValue(r.Context(), &hookListKey, &hookList{})
		next(rw, r.WithContext(WithLogger(ctx, l)))
	}
}

// Log tags the request with an id (reusing the caller's x-request-id if it
// sent one) and logs its outcome. Server errors log at error level, client
// errors at warn.
func Log() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		rw.Header().Set(RequestIDHeader, requestID)

		hooks := getHookList(r.Context())

		var l logrus.FieldLogger = GetLogger(r.Context()).WithFields(logrus.Fields{
			"http.request_id": requestID,
			"http.method":     r.Method,
			"http.path":       r.URL.String(),
			"http.remote":     r.RemoteAddr,
			"http.user_agent": r.Header.Get("user-agent"),
		})

		l = hooks.run(rw, r, l, false)

		ctx := context.WithValue(r.Context(), &requestIDKey, requestID)
		r = r.WithContext(WithLogger(ctx, l))

		defer func() {
			status := 0
			if nrw, ok := rw.(interface {
				Status() int
				Size() int
			}); ok {
				status = nrw.Status()
				l = l.WithFields(logrus.Fields{
					"http.status_code":   status,
					"http.response_size": nrw.Size(),
				})
			}

			l = hooks.run(rw, r, l, true)

			switch {
			case status >= 500:
				l.Error("http request finished")
			case status >= 400:
				l.Warn("http request finished")
			default:
				l.Info("http request finished")
			}
		}()

		l.Debug("http request started")

		next(rw, r)
	}
}
