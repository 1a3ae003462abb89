package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sb "fknsrs.biz/p/sqlbuilder"
	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/vidscribe/internal/dbtest"
	"fknsrs.biz/p/vidscribe/internal/ptr"
	"fknsrs.biz/p/vidscribe/models"
)

var testNow = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

func createVideo(t *testing.T, db *sql.DB, v models.Video) *models.Video {
	t.Helper()

	dbtest.Tx(t, db, func(tx *sql.Tx) error {
		return CreateVideo(context.Background(), tx, testNow, &v)
	})

	return &v
}

func TestCreateAndFindVideo(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	v := createVideo(t, db, models.Video{URL: "https://example.com/v/1"})
	a.NotZero(v.ID)
	a.Equal(models.StatusPending, v.Status)

	found, err := FindVideo(ctx, db, v.ID)
	a.NoError(err)
	a.Equal("https://example.com/v/1", found.URL)
	a.Equal(models.StatusPending, found.Status)
	a.Nil(found.VideoPath)

	_, err = FindVideo(ctx, db, v.ID+100)
	a.ErrorIs(err, sql.ErrNoRows)
}

func TestSaveVideoChecksVersion(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	v := createVideo(t, db, models.Video{URL: "https://example.com/v/1"})

	stale := *v

	v.Status = models.StatusDownloading
	dbtest.Tx(t, db, func(tx *sql.Tx) error { return SaveVideo(ctx, tx, testNow, v) })
	a.Equal(1, v.Version)

	stale.Title = "overwritten"
	tx, err := db.Begin()
	a.NoError(err)
	a.ErrorIs(SaveVideo(ctx, tx, testNow, &stale), ErrVersionConflict)
	a.NoError(tx.Rollback())

	found, err := FindVideo(ctx, db, v.ID)
	a.NoError(err)
	a.Equal(models.StatusDownloading, found.Status)
	a.Equal("", found.Title)
	a.Equal(1, found.Version)
}

func TestSaveVideoGone(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	v := createVideo(t, db, models.Video{URL: "https://example.com/v/1"})
	dbtest.Tx(t, db, func(tx *sql.Tx) error { return DeleteVideo(ctx, tx, v.ID) })

	tx, err := db.Begin()
	a.NoError(err)
	defer tx.Rollback()

	a.ErrorIs(SaveVideo(ctx, tx, testNow, v), sql.ErrNoRows)
}

func TestDeleteVideoCascades(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	v1 := createVideo(t, db, models.Video{URL: "https://example.com/v/1"})
	v2 := createVideo(t, db, models.Video{URL: "https://example.com/v/2"})

	var p models.Playlist
	dbtest.Tx(t, db, func(tx *sql.Tx) error {
		if err := CreatePlaylist(ctx, tx, testNow, &models.Playlist{Name: "unused"}); err != nil {
			return err
		}
		p.Name = "list"
		if err := CreatePlaylist(ctx, tx, testNow, &p); err != nil {
			return err
		}
		if _, err := AddToPlaylist(ctx, tx, testNow, p.ID, v1.ID); err != nil {
			return err
		}
		if _, err := AddToPlaylist(ctx, tx, testNow, p.ID, v2.ID); err != nil {
			return err
		}
		return CreateTranscription(ctx, tx, testNow, &models.Transcription{VideoID: v1.ID, Engine: "whisper_local", RawText: "hello"})
	})

	dbtest.Tx(t, db, func(tx *sql.Tx) error { return DeleteVideo(ctx, tx, v1.ID) })

	ts, err := VideoTranscriptions(ctx, db, v1.ID)
	a.NoError(err)
	a.Len(ts, 0)

	entries, err := PlaylistVideos(ctx, db, p.ID)
	a.NoError(err)
	if a.Len(entries, 1) {
		a.Equal(v2.ID, entries[0].ID)
		a.Equal(0, entries[0].Position)
	}

	_, err = FindPlaylist(ctx, db, p.ID)
	a.NoError(err)
}

func TestListVideos(t *testing.T) {
	db := dbtest.Open(t)

	for i, e := range []struct {
		title  string
		status models.Status
	}{
		{"Go Concurrency Patterns", models.StatusCompleted},
		{"Cooking with gas", models.StatusFailed},
		{"Advanced GO", models.StatusCompleted},
		{"Untitled", models.StatusPending},
	} {
		dbtest.Tx(t, db, func(tx *sql.Tx) error {
			return CreateVideo(context.Background(), tx, testNow.Add(time.Duration(i)*time.Minute), &models.Video{
				URL:    "https://example.com/v",
				Title:  e.title,
				Status: e.status,
			})
		})
	}

	for _, tc := range []struct {
		name   string
		query  VideoQuery
		titles []string
		total  int
	}{
		{"all newest first", VideoQuery{}, []string{"Untitled", "Advanced GO", "Cooking with gas", "Go Concurrency Patterns"}, 4},
		{"status", VideoQuery{Status: "completed"}, []string{"Advanced GO", "Go Concurrency Patterns"}, 2},
		{"search ignores case", VideoQuery{Search: "go"}, []string{"Advanced GO", "Go Concurrency Patterns"}, 2},
		{"status and search", VideoQuery{Status: "failed", Search: "GAS"}, []string{"Cooking with gas"}, 1},
		{"page", VideoQuery{Offset: 1, Limit: 2}, []string{"Advanced GO", "Cooking with gas"}, 4},
		{"past the end", VideoQuery{Offset: 10, Limit: 2}, nil, 4},
		{"filter", VideoQuery{Filter: sb.BinaryOperator("=", models.VideoTable.C("Title"), sb.Bind("Untitled"))}, []string{"Untitled"}, 1},
		{"orders", VideoQuery{Status: "completed", Orders: []sb.AsOrderingTerm{sb.OrderAsc(models.VideoTable.C("Title"))}}, []string{"Advanced GO", "Go Concurrency Patterns"}, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			videos, total, err := ListVideos(context.Background(), db, tc.query)
			a.NoError(err)
			a.Equal(tc.total, total)

			var titles []string
			for _, v := range videos {
				titles = append(titles, v.Title)
			}
			a.Equal(tc.titles, titles)
		})
	}
}

func TestResetStuckVideos(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	var ids []int
	for _, v := range []models.Video{
		{URL: "a", Status: models.StatusDownloading},
		{URL: "b", Status: models.StatusDownloading, VideoPath: ptr.String("videos/2/video.mp4")},
		{URL: "c", Status: models.StatusExtracting, VideoPath: ptr.String("videos/3/video.mp4")},
		{URL: "d", Status: models.StatusTranscribing},
		{URL: "e", Status: models.StatusCompleted},
		{URL: "f", Status: models.StatusFailed},
	} {
		ids = append(ids, createVideo(t, db, v).ID)
	}

	var reset []int
	dbtest.Tx(t, db, func(tx *sql.Tx) error {
		var err error
		reset, err = ResetStuckVideos(ctx, tx, testNow)
		return err
	})

	a.Equal(ids[:4], reset)

	for i, want := range []models.Status{
		models.StatusPending,
		models.StatusDownloaded,
		models.StatusDownloaded,
		models.StatusExtracted,
		models.StatusCompleted,
		models.StatusFailed,
	} {
		v, err := FindVideo(ctx, db, ids[i])
		a.NoError(err)
		a.Equal(want, v.Status, "video %d", i)
	}
}

func TestVideosUpdatedSince(t *testing.T) {
	a := assert.New(t)

	db := dbtest.Open(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createVideo(t, db, models.Video{URL: "https://example.com/watch"})
	}

	first, err := VideosUpdatedSince(ctx, db, testNow.Add(-time.Second), 0, 2)
	a.NoError(err)
	if !a.Len(first, 2) {
		return
	}
	a.Equal(1, first[0].ID)
	a.Equal(2, first[1].ID)

	last := first[len(first)-1]

	rest, err := VideosUpdatedSince(ctx, db, last.UpdatedAt, last.ID, 2)
	a.NoError(err)
	if !a.Len(rest, 1) {
		return
	}
	a.Equal(3, rest[0].ID)

	none, err := VideosUpdatedSince(ctx, db, rest[0].UpdatedAt, rest[0].ID, 2)
	a.NoError(err)
	a.Empty(none)
}
