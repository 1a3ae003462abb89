package pipeline

import (
	"context"
	"sync"

	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/keylock"
)

// Runner makes sure only one driver run per video happens at a time, and
// lets a run be cancelled from outside, for example when its video is
// deleted.
type Runner struct {
	driver *Driver
	locks  *keylock.Map[int]

	m       sync.Mutex
	cancels map[int]context.CancelFunc
}

func NewRunner(driver *Driver) *Runner {
	return &Runner{
		driver:  driver,
		locks:   keylock.New[int](),
		cancels: make(map[int]context.CancelFunc),
	}
}

// Run returns straight away if the video already has a run in progress.
func (r *Runner) Run(ctx context.Context, videoID int, opts Options) error {
	unlock, ok := r.locks.TryLock(videoID)
	if !ok {
		ctxlogger.GetLogger(ctx).WithField("video.id", videoID).Info("video already has a run in progress; skipping")
		return nil
	}
	defer unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.m.Lock()
	r.cancels[videoID] = cancel
	r.m.Unlock()

	defer func() {
		r.m.Lock()
		delete(r.cancels, videoID)
		r.m.Unlock()
	}()

	return r.driver.Run(ctx, videoID, opts)
}

// Cancel stops the video's run, if it has one, and reports whether it did.
func (r *Runner) Cancel(videoID int) bool {
	r.m.Lock()
	defer r.m.Unlock()

	cancel, ok := r.cancels[videoID]
	if ok {
		cancel()
	}

	return ok
}

func (r *Runner) IsRunning(videoID int) bool {
	return r.locks.IsLocked(videoID)
}
