package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/vidscribe/models"
)

func CreateTranscription(ctx context.Context, tx *sql.Tx, now time.Time, t *models.Transcription) error {
	t.CreatedAt = now

	if err := sorm.CreateRecord(ctx, tx, t); err != nil {
		return fmt.Errorf("store.CreateTranscription: %w", err)
	}

	return nil
}

func VideoTranscriptions(ctx context.Context, q Querier, videoID int) ([]models.Transcription, error) {
	var a []models.Transcription
	if err := sorm.FindWhere(ctx, q, &a, "where video_id = ? order by created_at desc, id desc", videoID); err != nil {
		return nil, fmt.Errorf("store.VideoTranscriptions: %w", err)
	}

	return a, nil
}

func LatestTranscriptions(ctx context.Context, q Querier, limit int) ([]models.Transcription, error) {
	var a []models.Transcription
	if err := sorm.FindWhere(ctx, q, &a, "order by created_at desc, id desc limit ?", limit); err != nil {
		return nil, fmt.Errorf("store.LatestTranscriptions: %w", err)
	}

	return a, nil
}
