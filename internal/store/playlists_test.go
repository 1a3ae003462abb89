package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/vidscribe/internal/dbtest"
	"fknsrs.biz/p/vidscribe/models"
)

func setupPlaylist(t *testing.T, db *sql.DB, n int) (*models.Playlist, []int) {
	t.Helper()

	ctx := context.Background()

	var ids []int
	for i := 0; i < n; i++ {
		ids = append(ids, createVideo(t, db, models.Video{URL: "https://example.com/v"}).ID)
	}

	p := models.Playlist{Name: "list"}
	dbtest.Tx(t, db, func(tx *sql.Tx) error {
		if err := CreatePlaylist(ctx, tx, testNow, &p); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := AddToPlaylist(ctx, tx, testNow, p.ID, id); err != nil {
				return err
			}
		}
		return nil
	})

	return &p, ids
}

func playlistOrder(t *testing.T, db *sql.DB, id int) ([]int, []int) {
	t.Helper()

	entries, err := PlaylistVideos(context.Background(), db, id)
	if err != nil {
		t.Fatal(err)
	}

	var ids, positions []int
	for _, e := range entries {
		ids = append(ids, e.ID)
		positions = append(positions, e.Position)
	}

	return ids, positions
}

func TestAddToPlaylist(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	p, ids := setupPlaylist(t, db, 3)

	got, positions := playlistOrder(t, db, p.ID)
	a.Equal(ids, got)
	a.Equal([]int{0, 1, 2}, positions)

	tx, err := db.Begin()
	a.NoError(err)
	defer tx.Rollback()

	_, err = AddToPlaylist(ctx, tx, testNow, p.ID, ids[1])
	a.ErrorIs(err, ErrDuplicateMember)
}

func TestRemoveFromPlaylistCompacts(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	p, ids := setupPlaylist(t, db, 3)

	dbtest.Tx(t, db, func(tx *sql.Tx) error { return RemoveFromPlaylist(ctx, tx, p.ID, ids[0]) })

	got, positions := playlistOrder(t, db, p.ID)
	a.Equal(ids[1:], got)
	a.Equal([]int{0, 1}, positions)

	tx, err := db.Begin()
	a.NoError(err)
	defer tx.Rollback()

	a.ErrorIs(RemoveFromPlaylist(ctx, tx, p.ID, ids[0]), ErrNotMember)
}

func TestReorderPlaylist(t *testing.T) {
	for _, tc := range []struct {
		name  string
		order func(ids []int) []int
		want  func(ids []int) []int
	}{
		{
			"reverse",
			func(ids []int) []int { return []int{ids[2], ids[1], ids[0]} },
			func(ids []int) []int { return []int{ids[2], ids[1], ids[0]} },
		},
		{
			"non-members ignored",
			func(ids []int) []int { return []int{9999, ids[1], ids[2], ids[0], 12345} },
			func(ids []int) []int { return []int{ids[1], ids[2], ids[0]} },
		},
		{
			"unlisted members keep order at the end",
			func(ids []int) []int { return []int{ids[2]} },
			func(ids []int) []int { return []int{ids[2], ids[0], ids[1]} },
		},
		{
			"repeats count once",
			func(ids []int) []int { return []int{ids[1], ids[1], ids[0], ids[2]} },
			func(ids []int) []int { return []int{ids[1], ids[0], ids[2]} },
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			db := dbtest.Open(t)
			ctx := context.Background()

			p, ids := setupPlaylist(t, db, 3)

			dbtest.Tx(t, db, func(tx *sql.Tx) error { return ReorderPlaylist(ctx, tx, p.ID, tc.order(ids)) })

			got, positions := playlistOrder(t, db, p.ID)
			a.Equal(tc.want(ids), got)
			a.Equal([]int{0, 1, 2}, positions)
		})
	}
}

func TestDeletePlaylistKeepsVideos(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	p, ids := setupPlaylist(t, db, 2)

	dbtest.Tx(t, db, func(tx *sql.Tx) error { return DeletePlaylist(ctx, tx, p.ID) })

	_, err := FindPlaylist(ctx, db, p.ID)
	a.ErrorIs(err, sql.ErrNoRows)

	for _, id := range ids {
		_, err := FindVideo(ctx, db, id)
		a.NoError(err)
	}

	counts, err := PlaylistVideoCounts(ctx, db)
	a.NoError(err)
	a.Len(counts, 0)
}

func TestPlaylistVideoCounts(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	p1, _ := setupPlaylist(t, db, 2)
	p2, _ := setupPlaylist(t, db, 3)

	counts, err := PlaylistVideoCounts(ctx, db)
	a.NoError(err)
	a.Equal(map[int]int{p1.ID: 2, p2.ID: 3}, counts)
}
