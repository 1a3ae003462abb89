package models

import (
	"fmt"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusDownloaded   Status = "downloaded"
	StatusExtracting   Status = "extracting"
	StatusExtracted    Status = "extracted"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

var AllStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusDownloaded,
	StatusExtracting,
	StatusExtracted,
	StatusTranscribing,
	StatusCompleted,
	StatusFailed,
}

func ParseStatus(s string) (Status, error) {
	for _, e := range AllStatuses {
		if string(e) == s {
			return e, nil
		}
	}

	return "", fmt.Errorf("models.ParseStatus: unrecognised status %q", s)
}

// IsActive is true while an external step is running.
func (s Status) IsActive() bool {
	switch s {
	case StatusDownloading, StatusExtracting, StatusTranscribing:
		return true
	default:
		return false
	}
}

func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}
