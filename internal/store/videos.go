package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"fknsrs.biz/p/sorm"
	"fknsrs.biz/p/sorm/qsorm"
	sb "fknsrs.biz/p/sqlbuilder"

	"fknsrs.biz/p/vidscribe/models"
)

func FindVideo(ctx context.Context, q Querier, id int) (*models.Video, error) {
	var video models.Video
	if err := sorm.FindFirstWhere(ctx, q, &video, "where id = ?", id); err != nil {
		return nil, fmt.Errorf("store.FindVideo: %w", err)
	}

	return &video, nil
}

func CreateVideo(ctx context.Context, tx *sql.Tx, now time.Time, video *models.Video) error {
	video.CreatedAt = now
	video.UpdatedAt = now
	if video.Status == "" {
		video.Status = models.StatusPending
	}

	if err := sorm.CreateRecord(ctx, tx, video); err != nil {
		return fmt.Errorf("store.CreateVideo: %w", err)
	}

	return nil
}

// SaveVideo writes video if nobody else has written it since it was read.
// It returns sql.ErrNoRows if the video has been deleted and
// ErrVersionConflict if the stored version has moved on. On success
// video.Version is advanced.
func SaveVideo(ctx context.Context, tx *sql.Tx, now time.Time, video *models.Video) error {
	res, err := tx.ExecContext(ctx, "update videos set version = version + 1 where id = ? and version = ?", video.ID, video.Version)
	if err != nil {
		return fmt.Errorf("store.SaveVideo: could not bump version: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store.SaveVideo: %w", err)
	}

	if n == 0 {
		if _, err := FindVideo(ctx, tx, video.ID); err != nil {
			return fmt.Errorf("store.SaveVideo: %w", err)
		}

		return fmt.Errorf("store.SaveVideo: video %d at version %d: %w", video.ID, video.Version, ErrVersionConflict)
	}

	video.Version++
	video.UpdatedAt = now

	if err := sorm.SaveRecord(ctx, tx, video); err != nil {
		return fmt.Errorf("store.SaveVideo: %w", err)
	}

	return nil
}

// DeleteVideo removes the video along with its transcriptions and playlist
// memberships, closing the gaps it leaves in playlist positions.
func DeleteVideo(ctx context.Context, tx *sql.Tx, id int) error {
	var memberships []models.PlaylistVideo
	if err := sorm.FindWhere(ctx, tx, &memberships, "where video_id = ?", id); err != nil {
		return fmt.Errorf("store.DeleteVideo: could not find memberships: %w", err)
	}

	for _, query := range []string{
		"delete from playlist_videos where video_id = ?",
		"delete from transcriptions where video_id = ?",
		"delete from videos where id = ?",
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("store.DeleteVideo: %w", err)
		}
	}

	for _, m := range memberships {
		if err := compactPlaylist(ctx, tx, m.PlaylistID); err != nil {
			return fmt.Errorf("store.DeleteVideo: %w", err)
		}
	}

	return nil
}

type VideoQuery struct {
	Status string
	Search string
	// Filter is ANDed with the other conditions.
	Filter sb.AsExpr
	Orders []sb.AsOrderingTerm
	Offset int
	Limit  int
}

func (vq VideoQuery) condition() sb.AsExpr {
	var a []sb.AsExpr

	if vq.Status != "" {
		a = append(a, sb.BinaryOperator("=", models.VideoTable.C("Status"), sb.Bind(vq.Status)))
	}

	if vq.Search != "" {
		a = append(a, sb.Ne(
			sb.Func(
				"instr",
				sb.Func("lower", models.VideoTable.C("Title")),
				sb.Bind(strings.ToLower(vq.Search)),
			),
			sb.Literal("0"),
		))
	}

	if vq.Filter != nil {
		a = append(a, vq.Filter)
	}

	switch len(a) {
	case 0:
		return nil
	case 1:
		return a[0]
	default:
		return sb.BooleanOperator("and", a...)
	}
}

// ListVideos returns one page of videos and the number of videos matching
// the query across all pages.
func ListVideos(ctx context.Context, q Querier, vq VideoQuery) ([]models.Video, int, error) {
	condition := vq.condition()

	orders := vq.Orders
	if len(orders) == 0 {
		orders = []sb.AsOrderingTerm{
			sb.OrderDesc(models.VideoTable.C("CreatedAt")),
			sb.OrderDesc(models.VideoTable.C("ID")),
		}
	}

	total, err := qsorm.CountWhere(ctx, q, &models.Video{}, condition)
	if err != nil {
		return nil, 0, fmt.Errorf("store.ListVideos: could not count videos: %w", err)
	}

	limit := vq.Limit
	if limit <= 0 {
		limit = 20
	}

	var videos []models.Video
	if err := qsorm.FindWhere(ctx, q, &videos, condition, orders, sb.OffsetLimit(sb.Bind(vq.Offset), sb.Bind(limit))); err != nil {
		return nil, 0, fmt.Errorf("store.ListVideos: %w", err)
	}

	return videos, total, nil
}

func RecentVideos(ctx context.Context, q Querier, limit int) ([]models.Video, error) {
	var videos []models.Video
	if err := sorm.FindWhere(ctx, q, &videos, "order by created_at desc, id desc limit ?", limit); err != nil {
		return nil, fmt.Errorf("store.RecentVideos: %w", err)
	}

	return videos, nil
}

// ResetStuckVideos moves videos left in an in-progress status (by a crash
// or a hard stop) back to the status they can resume from. It returns the
// ids of the videos it touched.
func ResetStuckVideos(ctx context.Context, tx *sql.Tx, now time.Time) ([]int, error) {
	var videos []models.Video
	if err := sorm.FindWhere(ctx, tx, &videos, "where status in (?, ?, ?) order by id asc", string(models.StatusDownloading), string(models.StatusExtracting), string(models.StatusTranscribing)); err != nil {
		return nil, fmt.Errorf("store.ResetStuckVideos: %w", err)
	}

	var ids []int
	for i := range videos {
		video := &videos[i]

		switch video.Status {
		case models.StatusDownloading:
			if video.VideoPath != nil {
				video.Status = models.StatusDownloaded
			} else {
				video.Status = models.StatusPending
			}
		case models.StatusExtracting:
			video.Status = models.StatusDownloaded
		case models.StatusTranscribing:
			video.Status = models.StatusExtracted
		}

		if err := SaveVideo(ctx, tx, now, video); err != nil {
			return nil, fmt.Errorf("store.ResetStuckVideos: %w", err)
		}

		ids = append(ids, video.ID)
	}

	return ids, nil
}

// VideosUpdatedSince returns videos changed after the (since, afterID)
// cursor, oldest change first. Videos changed at exactly since are only
// returned if their id is above afterID, so a page cut in the middle of a
// run of equal timestamps picks up where it left off.
func VideosUpdatedSince(ctx context.Context, q Querier, since time.Time, afterID, limit int) ([]models.Video, error) {
	var videos []models.Video
	if err := sorm.FindWhere(ctx, q, &videos, "where updated_at > ? or (updated_at = ? and id > ?) order by updated_at asc, id asc limit ?", since, since, afterID, limit); err != nil {
		return nil, fmt.Errorf("store.VideosUpdatedSince: %w", err)
	}

	return videos, nil
}
