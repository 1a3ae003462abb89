// Package pipeline moves a video through download, audio extraction and
// transcription, persisting every status change as it goes.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/catchpanic"
	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/ctxtimer"
	"fknsrs.biz/p/vidscribe/internal/downloader"
	"fknsrs.biz/p/vidscribe/internal/markdown"
	"fknsrs.biz/p/vidscribe/internal/stackutil"
	"fknsrs.biz/p/vidscribe/internal/transcriber"
	"fknsrs.biz/p/vidscribe/models"
)

type Downloader interface {
	Download(ctx context.Context, videoID int, url string) (*downloader.Result, error)
}

type Extractor interface {
	ExtractAudio(ctx context.Context, videoID int, videoPath string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, req transcriber.Request) (*transcriber.Result, error)
}

type Writer interface {
	Write(ctx context.Context, videoID int, doc markdown.Document) (string, error)
}

// Store is the persistence the driver needs. LoadVideo returns
// sql.ErrNoRows for a missing video; SaveVideo refuses stale writes.
type Store interface {
	LoadVideo(ctx context.Context, id int) (*models.Video, error)
	SaveVideo(ctx context.Context, video *models.Video) error
	CompleteTranscription(ctx context.Context, video *models.Video, t *models.Transcription) error
}

// PathResolver turns stored relative paths into filesystem paths.
type PathResolver func(rel string) string

type Timeouts struct {
	Download   time.Duration
	Extract    time.Duration
	Transcribe time.Duration
}

func (t Timeouts) forStep(step Step) time.Duration {
	switch step {
	case StepDownload:
		return t.Download
	case StepExtract:
		return t.Extract
	case StepTranscribe:
		return t.Transcribe
	default:
		return 0
	}
}

// Options carry a one-off transcription override.
type Options struct {
	Engine string
	Model  string
}

type Driver struct {
	Store       Store
	Downloader  Downloader
	Extractor   Extractor
	Transcriber Transcriber
	Writer      Writer
	Resolve     PathResolver
	Timeouts    Timeouts
}

// Run advances the video as far as it will go. A step failure is recorded
// on the video and is not an error from Run; errors are only returned when
// the driver can't keep its own records straight.
func (d *Driver) Run(ctx context.Context, videoID int, opts Options) error {
	runID := uuid.NewString()

	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"video.id":        videoID,
		"pipeline.run_id": runID,
	})
	ctx = ctxlogger.WithLogger(ctx, l)
	ctx = ctxtimer.WithTimer(ctx, nil)

	for {
		video, err := d.Store.LoadVideo(ctx, videoID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				l.Info("video no longer exists; stopping")
				return nil
			}

			return fmt.Errorf("pipeline.Driver.Run: %w", err)
		}

		// a failed video keeps its download if it has one
		video.Status = ResumePoint(video.Status, video.VideoPath != nil)

		step, ok := NextStep(video.Status)
		if !ok {
			if video.Status.IsActive() {
				l.WithField("video.status", video.Status).Warn("video is mid-step without a run; leaving it alone")
			}

			return nil
		}

		done, err := d.runStep(ctx, video, step, runID, opts)
		if err != nil {
			return fmt.Errorf("pipeline.Driver.Run: %w", err)
		}
		if done {
			return nil
		}
	}
}

// runStep reports done when the run should stop, because the step failed
// or the video went away.
func (d *Driver) runStep(ctx context.Context, video *models.Video, step Step, runID string, opts Options) (bool, error) {
	l := ctxlogger.GetLogger(ctx).WithField("pipeline.step", step)

	started, err := Transition(video.Status, Started)
	if err != nil {
		return true, err
	}

	video.Status = started
	video.ErrorMessage = nil

	if err := d.Store.SaveVideo(ctx, video); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			l.Info("video deleted before step started")
			return true, nil
		}

		return true, fmt.Errorf("could not mark %s started: %w", step, err)
	}

	l.Info("step started")
	ctxtimer.Start(ctx, string(step))

	stepCtx := ctx
	if timeout := d.Timeouts.forStep(step); timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var transcription *models.Transcription

	stepErr := catchpanic.CatchErr(func() error {
		switch step {
		case StepDownload:
			return d.download(stepCtx, video)
		case StepExtract:
			return d.extract(stepCtx, video)
		case StepTranscribe:
			t, err := d.transcribe(stepCtx, video, runID, opts)
			transcription = t
			return err
		default:
			return fmt.Errorf("unknown step %q", step)
		}
	})

	if stepErr != nil {
		l.WithError(stepErr).Warn("step failed")

		// record the failure even when the run itself was cancelled
		if err := d.fail(context.WithoutCancel(ctx), video.ID, stepErr); err != nil {
			return true, err
		}

		return true, nil
	}

	next, err := Transition(video.Status, Succeeded)
	if err != nil {
		return true, err
	}
	video.Status = next

	if transcription != nil {
		err = d.Store.CompleteTranscription(ctx, video, transcription)
	} else {
		err = d.Store.SaveVideo(ctx, video)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			l.Info("video deleted during step")
			return true, nil
		}

		return true, fmt.Errorf("could not record %s result: %w", step, err)
	}

	took, _ := ctxtimer.Elapsed(ctx, string(step))
	l.WithFields(logrus.Fields{
		"video.status":           video.Status,
		"pipeline.step_duration": took,
	}).Info("step finished")

	return false, nil
}

func (d *Driver) download(ctx context.Context, video *models.Video) error {
	res, err := d.Downloader.Download(ctx, video.ID, video.URL)
	if err != nil {
		return err
	}

	video.Title = res.Title
	video.Description = res.Description
	video.DurationSeconds = res.DurationSeconds
	video.ThumbnailURL = res.ThumbnailURL
	video.ChannelName = res.ChannelName
	video.VideoPath = &res.Path

	return nil
}

func (d *Driver) extract(ctx context.Context, video *models.Video) error {
	if video.VideoPath == nil {
		return fmt.Errorf("video has no downloaded file")
	}

	p, err := d.Extractor.ExtractAudio(ctx, video.ID, *video.VideoPath)
	if err != nil {
		return err
	}

	video.AudioPath = &p

	return nil
}

func (d *Driver) transcribe(ctx context.Context, video *models.Video, runID string, opts Options) (*models.Transcription, error) {
	if video.AudioPath == nil {
		return nil, fmt.Errorf("video has no extracted audio")
	}

	audioPath := *video.AudioPath
	if d.Resolve != nil {
		audioPath = d.Resolve(audioPath)
	}

	ctxtimer.Start(ctx, "transcriber")

	res, err := d.Transcriber.Transcribe(ctx, transcriber.Request{
		AudioPath: audioPath,
		Engine:    opts.Engine,
		Model:     opts.Model,
	})
	if err != nil {
		return nil, err
	}

	elapsed, _ := ctxtimer.Elapsed(ctx, "transcriber")

	mdPath, err := d.Writer.Write(ctx, video.ID, markdown.Document{
		Title:           video.Title,
		URL:             video.URL,
		Channel:         video.ChannelName,
		DurationSeconds: video.DurationSeconds,
		TranscribedAt:   ctxclock.Now(ctx),
		Engine:          res.Engine,
		Model:           res.Model,
		Text:            res.Text,
	})
	if err != nil {
		return nil, err
	}

	video.TranscriptionPath = &mdPath

	return &models.Transcription{
		VideoID:         video.ID,
		RunID:           runID,
		Engine:          res.Engine,
		ModelName:       res.Model,
		Language:        res.Language,
		RawText:         res.Text,
		MarkdownPath:    mdPath,
		DurationSeconds: int(elapsed.Seconds()),
	}, nil
}

// fail reloads the video so the failure is recorded over whatever is
// stored now, not over the copy the step was working on.
func (d *Driver) fail(ctx context.Context, videoID int, stepErr error) error {
	video, err := d.Store.LoadVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		return fmt.Errorf("could not reload video to record failure: %w", err)
	}

	msg := FormatFailure(stepErr)

	video.Status = models.StatusFailed
	video.ErrorMessage = &msg

	if err := d.Store.SaveVideo(ctx, video); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		return fmt.Errorf("could not record failure: %w", err)
	}

	return nil
}

// plainErrorTypes say nothing about what went wrong beyond the message.
var plainErrorTypes = map[string]bool{
	"*errors.errorString": true,
	"*errors.joinError":   true,
	"*fmt.wrapError":      true,
	"*fmt.wrapErrors":     true,
}

// errorKind names the first error in the chain with a type of its own, or
// "error" when there isn't one.
func errorKind(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if name := fmt.Sprintf("%T", e); !plainErrorTypes[name] {
			return name
		}
	}

	return "error"
}

// FormatFailure renders an error for error_message: the most specific error
// type in the chain, the full message, and a stack trace.
func FormatFailure(err error) string {
	typeName := errorKind(err)

	var stack []string

	var pe *catchpanic.PanicError
	if errors.As(err, &pe) {
		stack = pe.Stack
	} else {
		stack = stackutil.Format(stackutil.Capture(32, 1))
	}

	return typeName + ": " + err.Error() + "\n\n" + strings.Join(stack, "\n")
}
