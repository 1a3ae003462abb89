package handlers

import (
	"net/http"
	"time"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxdb"
	"fknsrs.biz/p/vidscribe/internal/httputil"
	"fknsrs.biz/p/vidscribe/internal/jobqueue"
	"fknsrs.biz/p/vidscribe/internal/pipeline"
	"fknsrs.biz/p/vidscribe/internal/queuenames"
)

type jobResponse struct {
	ID                int        `json:"id"`
	QueueName         string     `json:"queue_name"`
	Payload           string     `json:"payload"`
	VideoID           *int       `json:"video_id"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	RunAfter          time.Time  `json:"run_after"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	ReservedUntil     *time.Time `json:"reserved_until"`
	ErrorMessages     []string   `json:"error_messages"`
}

// Jobs lists unfinished background jobs, newest first.
func Jobs(rw http.ResponseWriter, r *http.Request) {
	jobs, err := jobqueue.ListUnfinished(r.Context(), ctxdb.MustGetDB(r.Context()), 500)
	if err != nil {
		panic(err)
	}

	now := ctxclock.Now(r.Context())

	out := make([]jobResponse, len(jobs))
	for i := range jobs {
		job := &jobs[i]

		out[i] = jobResponse{
			ID:                job.ID,
			QueueName:         job.QueueName,
			Payload:           job.Payload,
			Status:            job.Status(now),
			CreatedAt:         job.CreatedAt,
			RunAfter:          job.RunAfter,
			AttemptsRemaining: job.AttemptsRemaining,
			ReservedUntil:     job.ReservedUntil,
			ErrorMessages:     []string(job.ErrorMessages),
		}

		if job.QueueName == queuenames.VideoProcess {
			if videoID, _, err := pipeline.ParseJobPayload(job.Payload); err == nil {
				out[i].VideoID = &videoID
			}
		}

		if out[i].ErrorMessages == nil {
			out[i].ErrorMessages = []string{}
		}
	}

	httputil.WriteJSON(rw, http.StatusOK, out)
}
