// Package jobqueue is a small persistent job queue on top of the application
// database. Jobs are reserved for a while before they run, so a crashed
// worker's job becomes available again once its reservation lapses.
package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/vidscribe/internal/sqltypes"
)

const (
	DefaultAttempts     = 5
	DefaultFailureDelay = time.Second * 5
	DefaultReservation  = time.Minute * 5
)

const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusFinished = "finished"
)

// ParsePayload splits a payload of the form "subject?key=value" into its
// subject and parameters.
func ParsePayload(s string) (string, url.Values, error) {
	subject, query, ok := strings.Cut(s, "?")
	if !ok {
		return s, url.Values{}, nil
	}

	m, err := url.ParseQuery(query)
	if err != nil {
		return subject, url.Values{}, fmt.Errorf("jobqueue.ParsePayload: %w", err)
	}

	return subject, m, nil
}

// FormatPayload is the inverse of ParsePayload. Parameters are sorted by key
// so equal requests give equal payloads.
func FormatPayload(subject string, m url.Values) string {
	if len(m) == 0 {
		return subject
	}

	return subject + "?" + m.Encode()
}

type Job struct {
	ID                int `sql:",table:jobs"`
	CreatedAt         time.Time
	QueueName         string
	Payload           string
	RunAfter          time.Time
	FailureDelay      time.Duration
	AttemptsRemaining int
	ReservedAt        *time.Time
	ReservedUntil     *time.Time
	FinishedAt        *time.Time
	ErrorMessages     sqltypes.JSONStringSlice
	OutputMessages    sqltypes.JSONStringSlice
}

// Status is "running" while the job holds a live reservation. A job whose
// reservation lapsed is pending again.
func (j *Job) Status(now time.Time) string {
	switch {
	case j.FinishedAt != nil:
		return StatusFinished
	case j.ReservedUntil != nil && j.ReservedUntil.After(now):
		return StatusRunning
	default:
		return StatusPending
	}
}

// ListUnfinished returns up to limit jobs that are still to run or running,
// newest first.
func ListUnfinished(ctx context.Context, db sorm.Querier, limit int) ([]Job, error) {
	var jobs []Job
	if err := sorm.FindWhere(ctx, db, &jobs, "where finished_at is null order by id desc limit ?", limit); err != nil {
		return nil, fmt.Errorf("jobqueue.ListUnfinished: %w", err)
	}

	return jobs, nil
}

func findFirst(ctx context.Context, db sorm.Querier, where string, args ...interface{}) (*Job, error) {
	var job Job
	if err := sorm.FindFirstWhere(ctx, db, &job, where, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &job, nil
}

// findNext picks the runnable job that has been waiting longest.
func findNext(ctx context.Context, db sorm.Querier, queueNames []string, now time.Time) (*Job, error) {
	if len(queueNames) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(queueNames)+2)
	for _, queueName := range queueNames {
		args = append(args, queueName)
	}
	args = append(args, now, now)

	job, err := findFirst(ctx, db,
		"where queue_name in (?"+strings.Repeat(", ?", len(queueNames)-1)+") and run_after < ? and (reserved_until is null or reserved_until < ?) and finished_at is null order by run_after asc, id asc",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("jobqueue.findNext: %w", err)
	}

	return job, nil
}

func findWaiting(ctx context.Context, db sorm.Querier, queueName, payload string, now time.Time) (*Job, error) {
	job, err := findFirst(ctx, db, "where queue_name = ? and payload = ? and finished_at is null and (reserved_until is null or reserved_until < ?)", queueName, payload, now)
	if err != nil {
		return nil, fmt.Errorf("jobqueue.findWaiting: %w", err)
	}

	return job, nil
}

func findNextAndReserve(ctx context.Context, tx *sql.Tx, queueNames []string, now time.Time, reserveFor time.Duration) (*Job, error) {
	job, err := findNext(ctx, tx, queueNames, now)
	if err != nil || job == nil {
		return nil, err
	}

	reservedUntil := now.Add(reserveFor)
	job.ReservedAt = &now
	job.ReservedUntil = &reservedUntil

	if err := sorm.SaveRecord(ctx, tx, job); err != nil {
		return nil, fmt.Errorf("jobqueue.findNextAndReserve: %w", err)
	}

	return job, nil
}

// finish records one attempt. A failed job with attempts left goes back to
// waiting after its failure delay instead of finishing.
func finish(ctx context.Context, tx *sql.Tx, job *Job, now time.Time, errorMessage, outputMessage string) error {
	if job.FinishedAt != nil {
		return fmt.Errorf("jobqueue.finish: job %d already finished", job.ID)
	}

	job.ErrorMessages = append(job.ErrorMessages, errorMessage)
	job.OutputMessages = append(job.OutputMessages, outputMessage)

	if errorMessage != "" && job.AttemptsRemaining > 0 {
		job.AttemptsRemaining--
		job.RunAfter = now.Add(job.FailureDelay)
		job.ReservedAt = nil
		job.ReservedUntil = nil
	} else {
		job.FinishedAt = &now
	}

	if err := sorm.SaveRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.finish: %w", err)
	}

	return nil
}
