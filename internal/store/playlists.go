package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/vidscribe/models"
)

func FindPlaylist(ctx context.Context, q Querier, id int) (*models.Playlist, error) {
	var playlist models.Playlist
	if err := sorm.FindFirstWhere(ctx, q, &playlist, "where id = ?", id); err != nil {
		return nil, fmt.Errorf("store.FindPlaylist: %w", err)
	}

	return &playlist, nil
}

func ListPlaylists(ctx context.Context, q Querier) ([]models.Playlist, error) {
	var a []models.Playlist
	if err := sorm.FindWhere(ctx, q, &a, "order by created_at desc, id desc"); err != nil {
		return nil, fmt.Errorf("store.ListPlaylists: %w", err)
	}

	return a, nil
}

func CreatePlaylist(ctx context.Context, tx *sql.Tx, now time.Time, playlist *models.Playlist) error {
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	if err := sorm.CreateRecord(ctx, tx, playlist); err != nil {
		return fmt.Errorf("store.CreatePlaylist: %w", err)
	}

	return nil
}

func SavePlaylist(ctx context.Context, tx *sql.Tx, now time.Time, playlist *models.Playlist) error {
	playlist.UpdatedAt = now

	if err := sorm.SaveRecord(ctx, tx, playlist); err != nil {
		return fmt.Errorf("store.SavePlaylist: %w", err)
	}

	return nil
}

// DeletePlaylist removes the playlist and its memberships. The videos stay.
func DeletePlaylist(ctx context.Context, tx *sql.Tx, id int) error {
	for _, query := range []string{
		"delete from playlist_videos where playlist_id = ?",
		"delete from playlists where id = ?",
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("store.DeletePlaylist: %w", err)
		}
	}

	return nil
}

// PlaylistVideoCounts maps playlist id to member count. Playlists with no
// members are absent.
func PlaylistVideoCounts(ctx context.Context, q Querier) (map[int]int, error) {
	rows, err := q.QueryContext(ctx, "select playlist_id, count(*) from playlist_videos group by playlist_id")
	if err != nil {
		return nil, fmt.Errorf("store.PlaylistVideoCounts: %w", err)
	}
	defer rows.Close()

	m := make(map[int]int)
	for rows.Next() {
		var id, n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("store.PlaylistVideoCounts: %w", err)
		}
		m[id] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.PlaylistVideoCounts: %w", err)
	}

	return m, nil
}

func playlistMembers(ctx context.Context, q Querier, playlistID int) ([]models.PlaylistVideo, error) {
	var a []models.PlaylistVideo
	if err := sorm.FindWhere(ctx, q, &a, "where playlist_id = ? order by position asc, id asc", playlistID); err != nil {
		return nil, fmt.Errorf("store.playlistMembers: %w", err)
	}

	return a, nil
}

type PlaylistEntry struct {
	models.Video
	Position int       `json:"position"`
	AddedAt  time.Time `json:"added_at"`
}

// PlaylistVideos returns the playlist's videos in position order.
func PlaylistVideos(ctx context.Context, q Querier, playlistID int) ([]PlaylistEntry, error) {
	members, err := playlistMembers(ctx, q, playlistID)
	if err != nil {
		return nil, fmt.Errorf("store.PlaylistVideos: %w", err)
	}

	var videos []models.Video
	if err := sorm.FindWhere(ctx, q, &videos, "where id in (select video_id from playlist_videos where playlist_id = ?)", playlistID); err != nil {
		return nil, fmt.Errorf("store.PlaylistVideos: %w", err)
	}

	byID := make(map[int]models.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}

	entries := make([]PlaylistEntry, 0, len(members))
	for _, m := range members {
		v, ok := byID[m.VideoID]
		if !ok {
			continue
		}

		entries = append(entries, PlaylistEntry{Video: v, Position: m.Position, AddedAt: m.AddedAt})
	}

	return entries, nil
}

// AddToPlaylist appends the video at the end of the playlist.
func AddToPlaylist(ctx context.Context, tx *sql.Tx, now time.Time, playlistID, videoID int) (*models.PlaylistVideo, error) {
	var existing models.PlaylistVideo
	if err := sorm.FindFirstWhere(ctx, tx, &existing, "where playlist_id = ? and video_id = ?", playlistID, videoID); err == nil {
		return nil, fmt.Errorf("store.AddToPlaylist: playlist %d video %d: %w", playlistID, videoID, ErrDuplicateMember)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store.AddToPlaylist: %w", err)
	}

	n, err := count(ctx, tx, "select count(*) from playlist_videos where playlist_id = ?", playlistID)
	if err != nil {
		return nil, fmt.Errorf("store.AddToPlaylist: %w", err)
	}

	m := models.PlaylistVideo{
		AddedAt:    now,
		PlaylistID: playlistID,
		VideoID:    videoID,
		Position:   n,
	}

	if err := sorm.CreateRecord(ctx, tx, &m); err != nil {
		return nil, fmt.Errorf("store.AddToPlaylist: %w", err)
	}

	return &m, nil
}

func RemoveFromPlaylist(ctx context.Context, tx *sql.Tx, playlistID, videoID int) error {
	res, err := tx.ExecContext(ctx, "delete from playlist_videos where playlist_id = ? and video_id = ?", playlistID, videoID)
	if err != nil {
		return fmt.Errorf("store.RemoveFromPlaylist: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store.RemoveFromPlaylist: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store.RemoveFromPlaylist: playlist %d video %d: %w", playlistID, videoID, ErrNotMember)
	}

	if err := compactPlaylist(ctx, tx, playlistID); err != nil {
		return fmt.Errorf("store.RemoveFromPlaylist: %w", err)
	}

	return nil
}

// ReorderPlaylist gives the listed members positions 0..n-1 in list order.
// Ids that aren't members are ignored. Members left out of the list keep
// their relative order after the listed ones.
func ReorderPlaylist(ctx context.Context, tx *sql.Tx, playlistID int, videoIDs []int) error {
	members, err := playlistMembers(ctx, tx, playlistID)
	if err != nil {
		return fmt.Errorf("store.ReorderPlaylist: %w", err)
	}

	byVideo := make(map[int]*models.PlaylistVideo, len(members))
	for i := range members {
		byVideo[members[i].VideoID] = &members[i]
	}

	var ordered []*models.PlaylistVideo
	seen := make(map[int]bool)

	for _, id := range videoIDs {
		if m, ok := byVideo[id]; ok && !seen[id] {
			ordered = append(ordered, m)
			seen[id] = true
		}
	}

	for i := range members {
		if !seen[members[i].VideoID] {
			ordered = append(ordered, &members[i])
		}
	}

	if err := setPositions(ctx, tx, ordered); err != nil {
		return fmt.Errorf("store.ReorderPlaylist: %w", err)
	}

	return nil
}

func compactPlaylist(ctx context.Context, tx *sql.Tx, playlistID int) error {
	members, err := playlistMembers(ctx, tx, playlistID)
	if err != nil {
		return fmt.Errorf("store.compactPlaylist: %w", err)
	}

	ordered := make([]*models.PlaylistVideo, len(members))
	for i := range members {
		ordered[i] = &members[i]
	}

	if err := setPositions(ctx, tx, ordered); err != nil {
		return fmt.Errorf("store.compactPlaylist: %w", err)
	}

	return nil
}

func setPositions(ctx context.Context, tx *sql.Tx, ordered []*models.PlaylistVideo) error {
	for i, m := range ordered {
		if m.Position == i {
			continue
		}

		m.Position = i

		if err := sorm.SaveRecord(ctx, tx, m); err != nil {
			return fmt.Errorf("store.setPositions: %w", err)
		}
	}

	return nil
}
