package ctxjobqueue

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"fknsrs.biz/p/vidscribe/internal/jobqueue"
)

var ErrNoWorker = fmt.Errorf("ctxjobqueue: no worker found in context")

var workerKey int

func WithWorker(ctx context.Context, w *jobqueue.Worker) context.Context {
	return context.WithValue(ctx, &workerKey, w)
}

func GetWorker(ctx context.Context) *jobqueue.Worker {
	w, _ := ctx.Value(&workerKey).(*jobqueue.Worker)
	return w
}

func Register(w *jobqueue.Worker) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithWorker(r.Context(), w)))
	}
}

// AddUnique queues job on the context's worker as part of tx, skipping it if
// an identical job is already waiting. It reports whether job was added.
func AddUnique(ctx context.Context, tx *sql.Tx, job *jobqueue.Job) (bool, error) {
	w := GetWorker(ctx)
	if w == nil {
		return false, ErrNoWorker
	}

	added, err := w.AddUnique(ctx, tx, job)
	if err != nil {
		return false, fmt.Errorf("ctxjobqueue.AddUnique: %w", err)
	}

	return added, nil
}
