package pipeline

import (
	"fmt"

	"fknsrs.biz/p/vidscribe/models"
)

var (
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
)

type State = models.Status

type Step string

const (
	StepDownload   Step = "download"
	StepExtract    Step = "extract"
	StepTranscribe Step = "transcribe"
)

type StepResult int

const (
	Started StepResult = iota
	Succeeded
	Failed
)

func (r StepResult) String() string {
	switch r {
	case Started:
		return "started"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("StepResult(%d)", int(r))
	}
}

// Transition is the whole status machine. A step starts from a resting
// status, then either succeeds into the next resting status or fails.
func Transition(s State, r StepResult) (State, error) {
	switch r {
	case Started:
		switch s {
		case models.StatusPending, models.StatusFailed:
			return models.StatusDownloading, nil
		case models.StatusDownloaded:
			return models.StatusExtracting, nil
		case models.StatusExtracted:
			return models.StatusTranscribing, nil
		}
	case Succeeded:
		switch s {
		case models.StatusDownloading:
			return models.StatusDownloaded, nil
		case models.StatusExtracting:
			return models.StatusExtracted, nil
		case models.StatusTranscribing:
			return models.StatusCompleted, nil
		}
	case Failed:
		if s.IsActive() {
			return models.StatusFailed, nil
		}
	}

	return s, fmt.Errorf("pipeline.Transition: %s from %q: %w", r, s, ErrInvalidTransition)
}

// NextStep is the step a run performs from s, if any.
func NextStep(s State) (Step, bool) {
	switch s {
	case models.StatusPending, models.StatusFailed:
		return StepDownload, true
	case models.StatusDownloaded:
		return StepExtract, true
	case models.StatusExtracted:
		return StepTranscribe, true
	default:
		return "", false
	}
}

// ResumePoint is where a failed video goes back to when retried. Work is
// only kept if the download survived.
func ResumePoint(s State, hasVideoPath bool) State {
	if s != models.StatusFailed {
		return s
	}

	if hasVideoPath {
		return models.StatusDownloaded
	}

	return models.StatusPending
}
