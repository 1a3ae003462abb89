package handlers

import (
	"net/http"

	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/httputil"
	"fknsrs.biz/p/vidscribe/internal/store"
	"fknsrs.biz/p/vidscribe/models"
)

func Health(rw http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func Stats(rw http.ResponseWriter, r *http.Request) {
	stats, err := store.GetStats(r.Context(), ctxdb.MustGetDB(r.Context()))
	if err != nil {
		panic(err)
	}

	if stats.RecentVideos == nil {
		stats.RecentVideos = []models.Video{}
	}

	httputil.WriteJSON(rw, http.StatusOK, stats)
}
