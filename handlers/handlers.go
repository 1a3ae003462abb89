// Package handlers implements the JSON API. Handlers panic on errors they
// don't expect; the recovery middleware turns those into 500s.
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/monoculum/formam"

	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/httputil"
)

// Register mounts every API route under /api/v1.
func Register(m *mux.Router) {
	api := m.PathPrefix("/api/v1").Subrouter()

	api.Methods(http.MethodGet).Path("/health").HandlerFunc(Health)
	api.Methods(http.MethodGet).Path("/stats").HandlerFunc(Stats)

	api.Methods(http.MethodPost).Path("/videos").HandlerFunc(CreateVideo)
	api.Methods(http.MethodGet).Path("/videos").HandlerFunc(Videos)
	api.Methods(http.MethodGet).Path("/videos/{id:[0-9]+}").HandlerFunc(Video)
	api.Methods(http.MethodDelete).Path("/videos/{id:[0-9]+}").HandlerFunc(DeleteVideo)
	api.Methods(http.MethodPost).Path("/videos/{id:[0-9]+}/retry").HandlerFunc(RetryVideo)
	api.Methods(http.MethodPost).Path("/videos/{id:[0-9]+}/transcribe").HandlerFunc(TranscribeVideo)
	api.Methods(http.MethodGet).Path("/videos/{id:[0-9]+}/transcription").HandlerFunc(VideoTranscription)
	api.Methods(http.MethodGet).Path("/videos/{id:[0-9]+}/transcriptions").HandlerFunc(VideoTranscriptions)
	api.Methods(http.MethodGet).Path("/videos/{id:[0-9]+}/thumbnail").HandlerFunc(VideoThumbnail)

	api.Methods(http.MethodGet).Path("/transcriptions").HandlerFunc(Transcriptions)

	api.Methods(http.MethodPost).Path("/playlists").HandlerFunc(CreatePlaylist)
	api.Methods(http.MethodGet).Path("/playlists").HandlerFunc(Playlists)
	api.Methods(http.MethodGet).Path("/playlists/{id:[0-9]+}").HandlerFunc(Playlist)
	api.Methods(http.MethodPut).Path("/playlists/{id:[0-9]+}").HandlerFunc(UpdatePlaylist)
	api.Methods(http.MethodDelete).Path("/playlists/{id:[0-9]+}").HandlerFunc(DeletePlaylist)
	api.Methods(http.MethodPost).Path("/playlists/{id:[0-9]+}/videos").HandlerFunc(AddPlaylistVideo)
	api.Methods(http.MethodPut).Path("/playlists/{id:[0-9]+}/videos/reorder").HandlerFunc(ReorderPlaylist)
	api.Methods(http.MethodDelete).Path("/playlists/{id:[0-9]+}/videos/{video_id:[0-9]+}").HandlerFunc(RemovePlaylistVideo)
	api.Methods(http.MethodGet).Path("/playlists/{id:[0-9]+}/transcriptions.zip").HandlerFunc(PlaylistTranscriptionsZip)

	api.Methods(http.MethodPost).Path("/credentials").HandlerFunc(CreateCredential)
	api.Methods(http.MethodGet).Path("/credentials").HandlerFunc(Credentials)
	api.Methods(http.MethodGet).Path("/credentials/{id:[0-9]+}").HandlerFunc(Credential)
	api.Methods(http.MethodPut).Path("/credentials/{id:[0-9]+}").HandlerFunc(UpdateCredential)
	api.Methods(http.MethodDelete).Path("/credentials/{id:[0-9]+}").HandlerFunc(DeleteCredential)
	api.Methods(http.MethodPost).Path("/credentials/{id:[0-9]+}/cookies").HandlerFunc(UploadCookies)

	api.Methods(http.MethodGet).Path("/settings").HandlerFunc(Settings)
	api.Methods(http.MethodPut).Path("/settings").HandlerFunc(UpdateSettings)

	api.Methods(http.MethodGet).Path("/jobs").HandlerFunc(Jobs)
	api.Methods(http.MethodGet).Path("/events").HandlerFunc(Events)

	api.NotFoundHandler = http.HandlerFunc(httputil.NotFound)
}

var queryDecoder = formam.NewDecoder(&formam.DecoderOptions{TagName: "formam", IgnoreUnknownKeys: true})

// handlerError carries a response out of a transaction callback so the
// transaction is rolled back before the response is written.
type handlerError struct {
	status  int
	message string
}

func (e *handlerError) Error() string { return e.message }

func fail(status int, message string) error {
	return &handlerError{status: status, message: message}
}

// inTx runs fn in a transaction. It reports false if it already wrote a
// response.
func inTx(rw http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tx *sql.Tx) error) bool {
	err := ctxdb.UsingTx(r.Context(), nil, fn)
	if err == nil {
		return true
	}

	var he *handlerError
	if errors.As(err, &he) {
		httputil.Error(rw, he.status, he.message)
		return false
	}

	panic(err)
}

func idVar(rw http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, ok := httputil.IntVar(r, name)
	if !ok {
		httputil.NotFound(rw, r)
	}

	return id, ok
}

func readJSON(rw http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := httputil.ReadJSON(r, v); err != nil {
		httputil.BadRequest(rw, err.Error())
		return false
	}

	return true
}
