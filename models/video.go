package models

import (
	"time"

	"fknsrs.biz/p/vidscribe/internal/sqlbuilderutil"
)

var (
	VideoTable *sqlbuilderutil.Table
)

func init() {
	VideoTable = sqlbuilderutil.MustMakeTable(Video{})
}

type Video struct {
	ID                int       `sql:",table:videos" json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Version           int       `json:"version"`
	URL               string    `sql:"url" json:"url"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	DurationSeconds   *int      `json:"duration_seconds"`
	ThumbnailURL      string    `sql:"thumbnail_url" json:"thumbnail_url"`
	ChannelName       string    `json:"channel_name"`
	Status            Status    `json:"status"`
	ErrorMessage      *string   `json:"error_message"`
	VideoPath         *string   `json:"video_path"`
	AudioPath         *string   `json:"audio_path"`
	TranscriptionPath *string   `json:"transcription_path"`
}
