package jobqueue

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/dbtest"
)

func addJob(t *testing.T, db *sql.DB, w *Worker, job *Job, unique bool) bool {
	t.Helper()

	var added bool
	dbtest.Tx(t, db, func(tx *sql.Tx) error {
		if unique {
			var err error
			added, err = w.AddUnique(context.Background(), tx, job)
			return err
		}

		added = true
		return w.Add(context.Background(), tx, job)
	})

	return added
}

func TestAddUnique(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)

	w := NewWorker(map[string]WorkerFunction{
		"q": func(ctx context.Context, w *Worker, j *Job) (string, error) { return "", nil },
	}, 0)

	a.True(addJob(t, db, w, &Job{QueueName: "q", Payload: "1"}, true))
	a.False(addJob(t, db, w, &Job{QueueName: "q", Payload: "1"}, true))
	a.True(addJob(t, db, w, &Job{QueueName: "q", Payload: "2"}, true))
	a.True(addJob(t, db, w, &Job{QueueName: "q", Payload: "1?engine=openai_api"}, true))

	var jobs []Job
	a.NoError(sorm.FindWhere(context.Background(), db, &jobs, "order by id asc"))
	a.Len(jobs, 3)
}

func TestAddRejectsUnknownQueue(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	w := NewWorker(nil, 0)

	tx, err := db.Begin()
	a.NoError(err)
	defer tx.Rollback()

	a.ErrorIs(w.Add(context.Background(), tx, &Job{QueueName: "missing"}), ErrWorkerDoesNotExist)
}

func TestRunOnce(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := ctxdb.WithDB(context.Background(), db)

	var seen []string
	w := NewWorker(map[string]WorkerFunction{
		"q": func(ctx context.Context, w *Worker, j *Job) (string, error) {
			seen = append(seen, j.Payload)
			return "ok " + j.Payload, nil
		},
	}, time.Minute)

	addJob(t, db, w, &Job{QueueName: "q", Payload: "1"}, true)
	time.Sleep(time.Millisecond)

	ran, err := w.RunOnce(ctx)
	a.NoError(err)
	a.True(ran)
	a.Equal([]string{"1"}, seen)

	_, err = w.RunOnce(ctx)
	a.ErrorIs(err, ErrNoPendingJobs)

	var job Job
	a.NoError(sorm.FindFirstWhere(ctx, db, &job, "where payload = ?", "1"))
	a.NotNil(job.FinishedAt)
	a.Equal([]string{"ok 1"}, []string(job.OutputMessages))

	// finished jobs don't block a new one
	a.True(addJob(t, db, w, &Job{QueueName: "q", Payload: "1"}, true))
}

func TestRunOnceRetriesFailures(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := ctxdb.WithDB(context.Background(), db)

	w := NewWorker(map[string]WorkerFunction{
		"q": func(ctx context.Context, w *Worker, j *Job) (string, error) {
			panic(fmt.Errorf("boom"))
		},
	}, time.Minute)

	addJob(t, db, w, &Job{QueueName: "q", Payload: "1", AttemptsRemaining: 2, FailureDelay: time.Hour}, false)
	time.Sleep(time.Millisecond)

	ran, err := w.RunOnce(ctx)
	a.NoError(err)
	a.True(ran)

	var job Job
	a.NoError(sorm.FindFirstWhere(ctx, db, &job, "where payload = ?", "1"))
	a.Nil(job.FinishedAt)
	a.Nil(job.ReservedUntil)
	a.Equal(1, job.AttemptsRemaining)
	if a.Len(job.ErrorMessages, 1) {
		a.Contains(job.ErrorMessages[0], "boom")
	}

	// delayed by an hour
	_, err = w.RunOnce(ctx)
	a.ErrorIs(err, ErrNoPendingJobs)
}

func TestStatus(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later, earlier := now.Add(time.Minute), now.Add(-time.Minute)

	for _, tc := range []struct {
		name string
		job  Job
		out  string
	}{
		{"new", Job{}, StatusPending},
		{"reserved", Job{ReservedUntil: &later}, StatusRunning},
		{"reservation lapsed", Job{ReservedUntil: &earlier}, StatusPending},
		{"finished", Job{ReservedUntil: &later, FinishedAt: &earlier}, StatusFinished},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.out, tc.job.Status(now))
		})
	}
}

func TestListUnfinished(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := ctxdb.WithDB(context.Background(), db)

	w := NewWorker(map[string]WorkerFunction{
		"q": func(ctx context.Context, w *Worker, j *Job) (string, error) { return "", nil },
	}, time.Minute)

	addJob(t, db, w, &Job{QueueName: "q", Payload: "1"}, false)
	addJob(t, db, w, &Job{QueueName: "q", Payload: "2"}, false)
	addJob(t, db, w, &Job{QueueName: "q", Payload: "3"}, false)
	time.Sleep(time.Millisecond)

	ran, err := w.RunOnce(ctx)
	a.NoError(err)
	a.True(ran)

	jobs, err := ListUnfinished(ctx, db, 10)
	a.NoError(err)

	var payloads []string
	for _, j := range jobs {
		payloads = append(payloads, j.Payload)
	}
	a.Equal([]string{"3", "2"}, payloads)

	jobs, err = ListUnfinished(ctx, db, 1)
	a.NoError(err)
	a.Len(jobs, 1)
}

func TestRunStopsWithContext(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)

	done := make(chan string, 1)
	w := NewWorker(map[string]WorkerFunction{
		"q": func(ctx context.Context, w *Worker, j *Job) (string, error) {
			done <- j.Payload
			return "", nil
		},
	}, time.Minute)

	ctx, cancel := context.WithCancel(ctxdb.WithDB(context.Background(), db))
	defer cancel()

	errs := make(chan error, 1)
	go func() { errs <- w.Run(ctx) }()

	time.Sleep(time.Millisecond)
	addJob(t, db, w, &Job{QueueName: "q", Payload: "1", RunAfter: time.Now().Add(-time.Second)}, false)

	select {
	case p := <-done:
		a.Equal("1", p)
	case <-time.After(5 * time.Second):
		a.Fail("job never ran")
	}

	cancel()

	select {
	case err := <-errs:
		a.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		a.Fail("worker never stopped")
	}
}
