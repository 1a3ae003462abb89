package store

import (
	"context"
	"fmt"

	"fknsrs.biz/p/vidscribe/models"
)

type Stats struct {
	TotalVideos         int            `json:"total_videos"`
	Completed           int            `json:"completed"`
	Processing          int            `json:"processing"`
	Failed              int            `json:"failed"`
	TotalPlaylists      int            `json:"total_playlists"`
	TotalTranscriptions int            `json:"total_transcriptions"`
	RecentVideos        []models.Video `json:"recent_videos"`
}

// GetStats counts videos by status. Processing is every status that is
// neither pending nor finished.
func GetStats(ctx context.Context, q Querier) (*Stats, error) {
	var s Stats

	for _, e := range []struct {
		out   *int
		query string
		args  []interface{}
	}{
		{&s.TotalVideos, "select count(*) from videos", nil},
		{&s.Completed, "select count(*) from videos where status = ?", []interface{}{string(models.StatusCompleted)}},
		{&s.Failed, "select count(*) from videos where status = ?", []interface{}{string(models.StatusFailed)}},
		{&s.Processing, "select count(*) from videos where status not in (?, ?, ?)", []interface{}{string(models.StatusPending), string(models.StatusCompleted), string(models.StatusFailed)}},
		{&s.TotalPlaylists, "select count(*) from playlists", nil},
		{&s.TotalTranscriptions, "select count(*) from transcriptions", nil},
	} {
		n, err := count(ctx, q, e.query, e.args...)
		if err != nil {
			return nil, fmt.Errorf("store.GetStats: %w", err)
		}
		*e.out = n
	}

	recent, err := RecentVideos(ctx, q, 5)
	if err != nil {
		return nil, fmt.Errorf("store.GetStats: %w", err)
	}
	if recent == nil {
		recent = []models.Video{}
	}
	s.RecentVideos = recent

	return &s, nil
}
