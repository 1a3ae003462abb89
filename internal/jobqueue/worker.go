package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/catchpanic"
	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
)

var (
	ErrWorkerDoesNotExist = fmt.Errorf("worker does not exist")
	ErrNoPendingJobs      = fmt.Errorf("no pending jobs")
)

const (
	idleDelay      = time.Second * 30
	reserveRetries = 25
)

type WorkerFunction func(ctx context.Context, w *Worker, j *Job) (string, error)

// Worker runs jobs from a fixed set of queues. Jobs live in the database, so
// any number of workers can share them.
type Worker struct {
	ch         chan struct{}
	m          map[string]WorkerFunction
	queueNames []string
	reserveFor time.Duration
}

// NewWorker makes a worker that holds each job it picks up for reserveFor
// before another worker may take it over. Zero means DefaultReservation.
func NewWorker(workerFunctions map[string]WorkerFunction, reserveFor time.Duration) *Worker {
	if reserveFor == 0 {
		reserveFor = DefaultReservation
	}

	w := &Worker{
		ch:         make(chan struct{}, 100),
		m:          make(map[string]WorkerFunction),
		reserveFor: reserveFor,
	}

	for queueName, fn := range workerFunctions {
		w.m[queueName] = fn
		w.queueNames = append(w.queueNames, queueName)
	}
	sort.Strings(w.queueNames)

	return w
}

func (w *Worker) Add(ctx context.Context, tx *sql.Tx, job *Job) error {
	if _, ok := w.m[job.QueueName]; !ok {
		return fmt.Errorf("jobqueue.Worker.Add: %q: %w", job.QueueName, ErrWorkerDoesNotExist)
	}

	now := ctxclock.Now(ctx)

	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}
	if job.FailureDelay == 0 {
		job.FailureDelay = DefaultFailureDelay
	}
	if job.AttemptsRemaining == 0 {
		job.AttemptsRemaining = DefaultAttempts
	}

	if err := sorm.CreateRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.Worker.Add: could not create job record: %w", err)
	}

	w.poke()

	return nil
}

// AddUnique adds job unless a job with the same queue and payload is already
// waiting to run. It reports whether job was added. A job that is currently
// reserved doesn't count as waiting.
func (w *Worker) AddUnique(ctx context.Context, tx *sql.Tx, job *Job) (bool, error) {
	existing, err := findWaiting(ctx, tx, job.QueueName, job.Payload, ctxclock.Now(ctx))
	if err != nil {
		return false, fmt.Errorf("jobqueue.Worker.AddUnique: %w", err)
	}

	if existing != nil {
		w.poke()
		return false, nil
	}

	if err := w.Add(ctx, tx, job); err != nil {
		return false, fmt.Errorf("jobqueue.Worker.AddUnique: %w", err)
	}

	return true, nil
}

func (w *Worker) poke() {
	select {
	case w.ch <- struct{}{}:
	default:
		// already pending
	}
}

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}

// reserveNext claims the next runnable job in its own transaction, so the
// reservation is visible to other workers before the job starts.
func (w *Worker) reserveNext(ctx context.Context, db *sql.DB) (*Job, error) {
	for attempt := 1; ; attempt++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("jobqueue.Worker.reserveNext: %w", err)
		}

		job, err := findNextAndReserve(ctx, tx, w.queueNames, ctxclock.Now(ctx), w.reserveFor)
		if err == nil {
			err = tx.Commit()
		}
		if err == nil {
			return job, nil
		}

		tx.Rollback()

		if !isBusy(err) || attempt >= reserveRetries {
			return nil, fmt.Errorf("jobqueue.Worker.reserveNext: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Int63n(int64(time.Millisecond * 500)))):
		}
	}
}

// RunOnce runs at most one job, reporting whether it did. With nothing to do
// it returns ErrNoPendingJobs.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	db := ctxdb.MustGetDB(ctx)

	job, err := w.reserveNext(ctx, db)
	if err != nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: %w", err)
	}
	if job == nil {
		return false, ErrNoPendingJobs
	}

	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"job.queue_name": job.QueueName,
		"job.id":         job.ID,
		"job.payload":    job.Payload,
	})

	l.Info("found pending job, running function")

	var errorMessage string
	outputMessage, err := catchpanic.CatchValue(func() (string, error) {
		return w.m[job.QueueName](ctxlogger.WithLogger(ctx, l), w, job)
	})
	if err != nil {
		errorMessage = err.Error()
	}

	l.WithFields(logrus.Fields{"job.error_message": errorMessage, "job.output_message": outputMessage}).Info("finished job")

	// the outcome is recorded even if we're shutting down
	if err := ctxdb.UsingTx(context.WithoutCancel(ctx), nil, func(ctx context.Context, tx *sql.Tx) error {
		return finish(ctx, tx, job, ctxclock.Now(ctx), errorMessage, outputMessage)
	}); err != nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: could not finish job: %w", err)
	}

	return true, nil
}

// Run works through jobs until ctx ends. It drains the queue whenever a job
// is added, and polls every idleDelay for jobs whose retry delay has passed.
func (w *Worker) Run(ctx context.Context) error {
	w.poke()

	delay := idleDelay

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		case <-w.ch:
		}

		didRunJob, err := w.RunOnce(ctx)
		switch {
		case err != nil && !errors.Is(err, ErrNoPendingJobs):
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ctxlogger.GetLogger(ctx).WithError(err).Error("could not run job")
			delay = idleDelay
		case didRunJob:
			delay = 0
		default:
			delay = idleDelay
		}
	}
}
