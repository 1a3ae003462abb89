package toollimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDoCapsConcurrency(t *testing.T) {
	a := assert.New(t)

	l := New(map[Tool]int{Transcode: 2})

	var running, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			a.NoError(l.Do(context.Background(), Transcode, func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			}))
		}()
	}

	wg.Wait()

	a.LessOrEqual(peak, int32(2))
	a.GreaterOrEqual(peak, int32(1))
}

func TestDoHonoursContext(t *testing.T) {
	a := assert.New(t)

	l := New(nil)

	hold := make(chan struct{})
	started := make(chan struct{})
	go l.Do(context.Background(), Download, func() error {
		close(started)
		<-hold
		return nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	called := false
	err := l.Do(ctx, Download, func() error { called = true; return nil })
	a.ErrorIs(err, context.DeadlineExceeded)
	a.False(called)

	close(hold)
}

func TestNilLimits(t *testing.T) {
	a := assert.New(t)

	var l *Limits

	called := false
	a.NoError(l.Do(context.Background(), Transcribe, func() error { called = true; return nil }))
	a.True(called)
}
