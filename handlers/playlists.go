package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"fknsrs.biz/p/vidscribe/internal/archiver"
	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxconfig"
	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/httputil"
	"fknsrs.biz/p/vidscribe/internal/store"
	"fknsrs.biz/p/vidscribe/internal/stringutil"
	"fknsrs.biz/p/vidscribe/models"
)

func CreatePlaylist(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	if !readJSON(rw, r, &input) {
		return
	}

	playlist := models.Playlist{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
	}

	if playlist.Name == "" {
		httputil.BadRequest(rw, "name is required")
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.CreatePlaylist(ctx, tx, ctxclock.Now(ctx), &playlist)
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusCreated, playlist)
}

type playlistSummary struct {
	models.Playlist
	VideoCount int `json:"video_count"`
}

func Playlists(rw http.ResponseWriter, r *http.Request) {
	db := ctxdb.MustGetDB(r.Context())

	playlists, err := store.ListPlaylists(r.Context(), db)
	if err != nil {
		panic(err)
	}

	counts, err := store.PlaylistVideoCounts(r.Context(), db)
	if err != nil {
		panic(err)
	}

	out := make([]playlistSummary, len(playlists))
	for i, p := range playlists {
		out[i] = playlistSummary{Playlist: p, VideoCount: counts[p.ID]}
	}

	httputil.WriteJSON(rw, http.StatusOK, out)
}

func findPlaylist(rw http.ResponseWriter, r *http.Request) (*models.Playlist, bool) {
	id, ok := idVar(rw, r, "id")
	if !ok {
		return nil, false
	}

	playlist, err := store.FindPlaylist(r.Context(), ctxdb.MustGetDB(r.Context()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.Error(rw, http.StatusNotFound, "playlist not found")
			return nil, false
		}

		panic(err)
	}

	return playlist, true
}

func Playlist(rw http.ResponseWriter, r *http.Request) {
	playlist, ok := findPlaylist(rw, r)
	if !ok {
		return
	}

	videos, err := store.PlaylistVideos(r.Context(), ctxdb.MustGetDB(r.Context()), playlist.ID)
	if err != nil {
		panic(err)
	}

	if videos == nil {
		videos = []store.PlaylistEntry{}
	}

	httputil.WriteJSON(rw, http.StatusOK, struct {
		*models.Playlist
		Videos []store.PlaylistEntry `json:"videos"`
	}{playlist, videos})
}

func UpdatePlaylist(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}

	if !readJSON(rw, r, &input) {
		return
	}

	playlist, ok := findPlaylist(rw, r)
	if !ok {
		return
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			httputil.BadRequest(rw, "name cannot be empty")
			return
		}
		playlist.Name = name
	}

	if input.Description != nil {
		playlist.Description = *input.Description
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.SavePlaylist(ctx, tx, ctxclock.Now(ctx), playlist)
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, playlist)
}

func DeletePlaylist(rw http.ResponseWriter, r *http.Request) {
	playlist, ok := findPlaylist(rw, r)
	if !ok {
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.DeletePlaylist(ctx, tx, playlist.ID)
	}) {
		return
	}

	httputil.NoContent(rw)
}

func AddPlaylistVideo(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		VideoID int `json:"video_id"`
	}

	if !readJSON(rw, r, &input) {
		return
	}

	playlist, ok := findPlaylist(rw, r)
	if !ok {
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := store.FindVideo(ctx, tx, input.VideoID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fail(http.StatusNotFound, "video not found")
			}
			return err
		}

		if _, err := store.AddToPlaylist(ctx, tx, ctxclock.Now(ctx), playlist.ID, input.VideoID); err != nil {
			if errors.Is(err, store.ErrDuplicateMember) {
				return fail(http.StatusConflict, "video is already in playlist")
			}
			return err
		}

		return nil
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusCreated, map[string]string{"status": "added"})
}

func RemovePlaylistVideo(rw http.ResponseWriter, r *http.Request) {
	playlist, ok := findPlaylist(rw, r)
	if !ok {
		return
	}

	videoID, ok := idVar(rw, r, "video_id")
	if !ok {
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		if err := store.RemoveFromPlaylist(ctx, tx, playlist.ID, videoID); err != nil {
			if errors.Is(err, store.ErrNotMember) {
				return fail(http.StatusNotFound, "video is not in playlist")
			}
			return err
		}

		return nil
	}) {
		return
	}

	httputil.NoContent(rw)
}

func ReorderPlaylist(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		VideoIDs []int `json:"video_ids"`
	}

	if !readJSON(rw, r, &input) {
		return
	}

	playlist, ok := findPlaylist(rw, r)
	if !ok {
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.ReorderPlaylist(ctx, tx, playlist.ID, input.VideoIDs)
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, map[string]string{"status": "reordered"})
}

func PlaylistTranscriptionsZip(rw http.ResponseWriter, r *http.Request) {
	playlist, ok := findPlaylist(rw, r)
	if !ok {
		return
	}

	videos, err := store.PlaylistVideos(r.Context(), ctxdb.MustGetDB(r.Context()), playlist.ID)
	if err != nil {
		panic(err)
	}

	var entries []archiver.Entry
	for _, v := range videos {
		if v.TranscriptionPath == nil {
			continue
		}

		title := v.Title
		if title == "" {
			title = v.URL
		}

		entries = append(entries, archiver.Entry{
			Title: title,
			Path:  ctxconfig.ResolveDataFile(r.Context(), *v.TranscriptionPath),
		})
	}

	rw.Header().Set("content-type", "application/zip")
	rw.Header().Set("content-disposition", `attachment; filename="`+stringutil.SafeFileName(playlist.Name)+`.zip"`)
	rw.WriteHeader(http.StatusOK)

	// headers are gone by now, so a failure can only cut the body short
	if _, err := archiver.ZipTranscripts(r.Context(), rw, entries); err != nil {
		panic(err)
	}
}
