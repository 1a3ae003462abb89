package models

import (
	"time"

	"fknsrs.biz/p/vidscribe/internal/sqlbuilderutil"
)

var (
	TranscriptionTable *sqlbuilderutil.Table
)

func init() {
	TranscriptionTable = sqlbuilderutil.MustMakeTable(Transcription{})
}

type Transcription struct {
	ID              int       `sql:",table:transcriptions" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	VideoID         int       `json:"video_id"`
	RunID           string    `json:"run_id"`
	Engine          string    `json:"engine"`
	ModelName       string    `json:"model_name"`
	Language        string    `json:"language"`
	RawText         string    `json:"raw_text"`
	MarkdownPath    string    `json:"markdown_path"`
	DurationSeconds int       `json:"duration_seconds"`
}
