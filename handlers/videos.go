package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxconfig"
	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/ctxhttpclient"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/ctxpipeline"
	"fknsrs.biz/p/vidscribe/internal/godatautil"
	"fknsrs.biz/p/vidscribe/internal/httputil"
	"fknsrs.biz/p/vidscribe/internal/pipeline"
	"fknsrs.biz/p/vidscribe/internal/settings"
	"fknsrs.biz/p/vidscribe/internal/store"
	"fknsrs.biz/p/vidscribe/models"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func validateVideoURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must be http or https")
	}

	if u.Host == "" {
		return errors.New("url must have a host")
	}

	return nil
}

func CreateVideo(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		URL        string `json:"url"`
		PlaylistID *int   `json:"playlist_id"`
	}

	if !readJSON(rw, r, &input) {
		return
	}

	if input.URL == "" {
		httputil.BadRequest(rw, "url is required")
		return
	}

	if err := validateVideoURL(input.URL); err != nil {
		httputil.BadRequest(rw, "invalid url: "+err.Error())
		return
	}

	video := models.Video{URL: strings.TrimSpace(input.URL)}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		now := ctxclock.Now(ctx)

		if input.PlaylistID != nil {
			if _, err := store.FindPlaylist(ctx, tx, *input.PlaylistID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fail(http.StatusNotFound, "playlist not found")
				}
				return err
			}
		}

		if err := store.CreateVideo(ctx, tx, now, &video); err != nil {
			return err
		}

		if input.PlaylistID != nil {
			if _, err := store.AddToPlaylist(ctx, tx, now, *input.PlaylistID, video.ID); err != nil {
				return err
			}
		}

		_, err := pipeline.Enqueue(ctx, tx, video.ID, pipeline.Options{})
		return err
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusCreated, video)
}

// TotalCountHeader carries the number of videos matching a list query
// across all pages.
const TotalCountHeader = "x-total-count"

func Videos(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		Status  string `formam:"status"`
		Search  string `formam:"search"`
		Page    int    `formam:"page"`
		PerPage int    `formam:"per_page"`
		Filter  string `formam:"$filter"`
		OrderBy string `formam:"$orderby"`
	}

	if err := queryDecoder.Decode(r.URL.Query(), &input); err != nil {
		httputil.BadRequest(rw, "invalid query: "+err.Error())
		return
	}

	if input.Page == 0 {
		input.Page = 1
	}
	if input.Page < 1 {
		httputil.BadRequest(rw, "page must be at least 1")
		return
	}

	if input.PerPage == 0 {
		input.PerPage = defaultPerPage
	}
	if input.PerPage < 1 || input.PerPage > maxPerPage {
		httputil.Errorf(rw, http.StatusBadRequest, "per_page must be between 1 and %d", maxPerPage)
		return
	}

	if input.Status != "" {
		if _, err := models.ParseStatus(input.Status); err != nil {
			httputil.BadRequest(rw, err.Error())
			return
		}
	}

	q, err := godatautil.ParseQuery(input.Filter, input.OrderBy)
	if err != nil {
		httputil.BadRequest(rw, err.Error())
		return
	}

	filter, err := godatautil.MakeCondition(q, models.VideoTable)
	if err != nil {
		httputil.BadRequest(rw, err.Error())
		return
	}

	orders, err := godatautil.MakeOrders(q, models.VideoTable)
	if err != nil {
		httputil.BadRequest(rw, err.Error())
		return
	}

	videos, total, err := store.ListVideos(r.Context(), ctxdb.MustGetDB(r.Context()), store.VideoQuery{
		Status: input.Status,
		Search: input.Search,
		Filter: filter,
		Orders: orders,
		Offset: (input.Page - 1) * input.PerPage,
		Limit:  input.PerPage,
	})
	if err != nil {
		panic(err)
	}

	if videos == nil {
		videos = []models.Video{}
	}

	rw.Header().Set(TotalCountHeader, strconv.Itoa(total))

	httputil.WriteJSON(rw, http.StatusOK, videos)
}

// findVideo writes a 404 and reports false if the video doesn't exist.
func findVideo(rw http.ResponseWriter, r *http.Request) (*models.Video, bool) {
	id, ok := idVar(rw, r, "id")
	if !ok {
		return nil, false
	}

	video, err := store.FindVideo(r.Context(), ctxdb.MustGetDB(r.Context()), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.Error(rw, http.StatusNotFound, "video not found")
			return nil, false
		}

		panic(err)
	}

	return video, true
}

func Video(rw http.ResponseWriter, r *http.Request) {
	video, ok := findVideo(rw, r)
	if !ok {
		return
	}

	transcriptions, err := store.VideoTranscriptions(r.Context(), ctxdb.MustGetDB(r.Context()), video.ID)
	if err != nil {
		panic(err)
	}

	if transcriptions == nil {
		transcriptions = []models.Transcription{}
	}

	httputil.WriteJSON(rw, http.StatusOK, struct {
		*models.Video
		Transcriptions []models.Transcription `json:"transcriptions"`
	}{video, transcriptions})
}

func DeleteVideo(rw http.ResponseWriter, r *http.Request) {
	video, ok := findVideo(rw, r)
	if !ok {
		return
	}

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return store.DeleteVideo(ctx, tx, video.ID)
	}) {
		return
	}

	l := ctxlogger.GetLogger(r.Context()).WithField("video.id", video.ID)

	if ctxpipeline.Cancel(r.Context(), video.ID) {
		l.Info("cancelled run for deleted video")
	}

	if err := os.RemoveAll(ctxconfig.DataFile(r.Context(), "videos", strconv.Itoa(video.ID))); err != nil {
		l.WithError(err).Warn("could not remove video files")
	}

	httputil.NoContent(rw)
}

func RetryVideo(rw http.ResponseWriter, r *http.Request) {
	video, ok := findVideo(rw, r)
	if !ok {
		return
	}

	if video.Status != models.StatusFailed {
		httputil.Errorf(rw, http.StatusBadRequest, "video is %s, only failed videos can be retried", video.Status)
		return
	}

	// the run that failed it may not have let go yet
	if ctxpipeline.IsRunning(r.Context(), video.ID) {
		httputil.Error(rw, http.StatusConflict, "video is still being processed")
		return
	}

	video.Status = pipeline.ResumePoint(video.Status, video.VideoPath != nil)
	video.ErrorMessage = nil

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return saveAndEnqueue(ctx, tx, video, pipeline.Options{})
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, video)
}

func TranscribeVideo(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		Engine    string `json:"engine"`
		Model     string `json:"model"`
		ModelName string `json:"model_name"`
	}

	if !readJSON(rw, r, &input) {
		return
	}

	if input.Model == "" {
		input.Model = input.ModelName
	}

	if input.Engine != "" {
		if err := settings.ValidateEngine(input.Engine); err != nil {
			httputil.BadRequest(rw, err.Error())
			return
		}
	}

	video, ok := findVideo(rw, r)
	if !ok {
		return
	}

	if video.AudioPath == nil {
		httputil.BadRequest(rw, "audio has not been extracted yet")
		return
	}

	if video.Status.IsActive() {
		httputil.Errorf(rw, http.StatusConflict, "video is %s", video.Status)
		return
	}

	// a run sits between steps with an idle status, and would finish
	// without the override
	if ctxpipeline.IsRunning(r.Context(), video.ID) {
		httputil.Error(rw, http.StatusConflict, "video is being processed")
		return
	}

	video.Status = models.StatusExtracted
	video.ErrorMessage = nil

	if !inTx(rw, r, func(ctx context.Context, tx *sql.Tx) error {
		return saveAndEnqueue(ctx, tx, video, pipeline.Options{Engine: input.Engine, Model: input.Model})
	}) {
		return
	}

	httputil.WriteJSON(rw, http.StatusOK, video)
}

func saveAndEnqueue(ctx context.Context, tx *sql.Tx, video *models.Video, opts pipeline.Options) error {
	if err := store.SaveVideo(ctx, tx, ctxclock.Now(ctx), video); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return fail(http.StatusNotFound, "video not found")
		case errors.Is(err, store.ErrVersionConflict):
			return fail(http.StatusConflict, "video was changed by someone else; try again")
		default:
			return err
		}
	}

	_, err := pipeline.Enqueue(ctx, tx, video.ID, opts)
	return err
}

func VideoTranscription(rw http.ResponseWriter, r *http.Request) {
	video, ok := findVideo(rw, r)
	if !ok {
		return
	}

	if video.TranscriptionPath == nil {
		httputil.Error(rw, http.StatusNotFound, "no transcription available")
		return
	}

	d, err := os.ReadFile(ctxconfig.ResolveDataFile(r.Context(), *video.TranscriptionPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			httputil.Error(rw, http.StatusNotFound, "transcription file not found")
			return
		}

		panic(err)
	}

	httputil.WriteJSON(rw, http.StatusOK, map[string]string{"markdown": string(d)})
}

func VideoTranscriptions(rw http.ResponseWriter, r *http.Request) {
	video, ok := findVideo(rw, r)
	if !ok {
		return
	}

	transcriptions, err := store.VideoTranscriptions(r.Context(), ctxdb.MustGetDB(r.Context()), video.ID)
	if err != nil {
		panic(err)
	}

	if transcriptions == nil {
		transcriptions = []models.Transcription{}
	}

	httputil.WriteJSON(rw, http.StatusOK, transcriptions)
}

func VideoThumbnail(rw http.ResponseWriter, r *http.Request) {
	video, ok := findVideo(rw, r)
	if !ok {
		return
	}

	if video.ThumbnailURL == "" {
		httputil.Error(rw, http.StatusNotFound, "video has no thumbnail")
		return
	}

	l := ctxlogger.GetLogger(r.Context()).WithFields(logrus.Fields{
		"video.id":            video.ID,
		"video.thumbnail_url": video.ThumbnailURL,
	})

	res, err := ctxhttpclient.Get(r.Context(), video.ThumbnailURL)
	if err != nil {
		l.WithError(err).Warn("could not fetch thumbnail")
		httputil.Error(rw, http.StatusBadGateway, "could not fetch thumbnail")
		return
	}
	defer res.Body.Close()

	if ct := res.Header.Get("content-type"); ct != "" {
		rw.Header().Set("content-type", ct)
	}
	rw.Header().Set("cache-control", "public, max-age=86400")
	rw.WriteHeader(http.StatusOK)

	if _, err := io.Copy(rw, res.Body); err != nil {
		l.WithError(err).Debug("could not finish sending thumbnail")
	}
}

func Transcriptions(rw http.ResponseWriter, r *http.Request) {
	transcriptions, err := store.LatestTranscriptions(r.Context(), ctxdb.MustGetDB(r.Context()), 50)
	if err != nil {
		panic(err)
	}

	if transcriptions == nil {
		transcriptions = []models.Transcription{}
	}

	httputil.WriteJSON(rw, http.StatusOK, transcriptions)
}
