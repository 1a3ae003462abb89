package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"

	"fknsrs.biz/p/vidscribe/internal/ctxjobqueue"
	"fknsrs.biz/p/vidscribe/internal/jobqueue"
	"fknsrs.biz/p/vidscribe/internal/queuenames"
)

// FormatJobPayload encodes a video id and any transcription override as a
// job payload. Identical requests produce identical payloads.
func FormatJobPayload(videoID int, opts Options) string {
	var m url.Values

	if opts.Engine != "" || opts.Model != "" {
		m = url.Values{}
		if opts.Engine != "" {
			m.Set("engine", opts.Engine)
		}
		if opts.Model != "" {
			m.Set("model", opts.Model)
		}
	}

	return jobqueue.FormatPayload(strconv.Itoa(videoID), m)
}

func ParseJobPayload(payload string) (int, Options, error) {
	s, m, err := jobqueue.ParsePayload(payload)
	if err != nil {
		return 0, Options{}, fmt.Errorf("pipeline.ParseJobPayload: %w", err)
	}

	videoID, err := strconv.Atoi(s)
	if err != nil {
		return 0, Options{}, fmt.Errorf("pipeline.ParseJobPayload: invalid video id %q: %w", s, err)
	}

	return videoID, Options{Engine: m.Get("engine"), Model: m.Get("model")}, nil
}

// Enqueue schedules a run for the video unless an identical one is already
// waiting. It reports whether a new job was added.
func Enqueue(ctx context.Context, tx *sql.Tx, videoID int, opts Options) (bool, error) {
	added, err := ctxjobqueue.AddUnique(ctx, tx, &jobqueue.Job{
		QueueName: queuenames.VideoProcess,
		Payload:   FormatJobPayload(videoID, opts),
	})
	if err != nil {
		return false, fmt.Errorf("pipeline.Enqueue: %w", err)
	}

	return added, nil
}

// WorkerFunction adapts the runner to the job queue.
func (r *Runner) WorkerFunction() jobqueue.WorkerFunction {
	return func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
		videoID, opts, err := ParseJobPayload(j.Payload)
		if err != nil {
			return "", err
		}

		if err := r.Run(ctx, videoID, opts); err != nil {
			return "", err
		}

		return "", nil
	}
}
