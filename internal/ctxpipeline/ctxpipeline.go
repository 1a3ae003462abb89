package ctxpipeline

import (
	"context"
	"fmt"
	"net/http"

	"fknsrs.biz/p/vidscribe/internal/pipeline"
)

var (
	ErrNoRunner = fmt.Errorf("ctxpipeline: no runner found in context")
)

// context registration

var runnerKey int

func WithRunner(ctx context.Context, r *pipeline.Runner) context.Context {
	return context.WithValue(ctx, &runnerKey, r)
}

func GetRunner(ctx context.Context) *pipeline.Runner {
	if v := ctx.Value(&runnerKey); v != nil {
		return v.(*pipeline.Runner)
	}

	return nil
}

// middleware

func Register(r *pipeline.Runner) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		next(rw, req.WithContext(WithRunner(req.Context(), r)))
	}
}

// main interface

// Cancel stops any run in progress for the video. It's a no-op without a
// runner in the context.
func Cancel(ctx context.Context, videoID int) bool {
	r := GetRunner(ctx)
	if r == nil {
		return false
	}

	return r.Cancel(videoID)
}

func IsRunning(ctx context.Context, videoID int) bool {
	r := GetRunner(ctx)
	if r == nil {
		return false
	}

	return r.IsRunning(videoID)
}
