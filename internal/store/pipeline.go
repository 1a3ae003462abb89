package store

import (
	"context"
	"database/sql"
	"fmt"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/models"
)

// PipelineStore gives the pipeline driver one short transaction per write.
type PipelineStore struct {
	DB *sql.DB
}

func (s *PipelineStore) LoadVideo(ctx context.Context, id int) (*models.Video, error) {
	video, err := FindVideo(ctx, s.DB, id)
	if err != nil {
		return nil, fmt.Errorf("store.PipelineStore.LoadVideo: %w", err)
	}

	return video, nil
}

func (s *PipelineStore) SaveVideo(ctx context.Context, video *models.Video) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return SaveVideo(ctx, tx, ctxclock.Now(ctx), video)
	})
}

// CompleteTranscription records the transcription and the video's final
// state together, so a completed video always has its transcription.
func (s *PipelineStore) CompleteTranscription(ctx context.Context, video *models.Video, t *models.Transcription) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := ctxclock.Now(ctx)

		if err := SaveVideo(ctx, tx, now, video); err != nil {
			return err
		}

		return CreateTranscription(ctx, tx, now, t)
	})
}

func (s *PipelineStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.PipelineStore: could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.PipelineStore: could not commit transaction: %w", err)
	}

	return nil
}
