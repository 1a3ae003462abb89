package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/store"
	"fknsrs.biz/p/vidscribe/models"
)

var (
	eventsInterval = 2 * time.Second
	eventsBatch    = 100
)

type videoEvent struct {
	ID           int           `json:"id"`
	Status       models.Status `json:"status"`
	ErrorMessage *string       `json:"error_message"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Events streams video status changes as server-sent events until the
// client goes away.
func Events(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := ctxlogger.GetLogger(ctx)

	rw.Header().Set("content-type", "text/event-stream")
	rw.Header().Set("cache-control", "no-cache")
	rw.Header().Set("connection", "keep-alive")
	rw.WriteHeader(http.StatusOK)

	flusher, _ := rw.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	since := ctxclock.Now(ctx)
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			// stored times carry the local offset and compare as text
			since = t.Local()
		}
	}

	var lastID int

	ticker := time.NewTicker(eventsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			videos, err := store.VideosUpdatedSince(ctx, ctxdb.MustGetDB(ctx), since, lastID, eventsBatch)
			if err != nil {
				if ctx.Err() == nil {
					l.WithError(err).Warn("could not poll for video changes")
				}
				continue
			}

			for _, v := range videos {
				d, err := json.Marshal(videoEvent{
					ID:           v.ID,
					Status:       v.Status,
					ErrorMessage: v.ErrorMessage,
					UpdatedAt:    v.UpdatedAt,
				})
				if err != nil {
					panic(err)
				}

				fmt.Fprintf(rw, "event: video\ndata: %s\n\n", d)

				// rows come back in cursor order
				since, lastID = v.UpdatedAt, v.ID
			}

			if len(videos) > 0 && flusher != nil {
				flusher.Flush()
			}
		}
	}
}
