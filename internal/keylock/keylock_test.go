package keylock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryLock(t *testing.T) {
	a := assert.New(t)

	m := New[int]()

	unlock, ok := m.TryLock(1)
	a.True(ok)
	a.True(m.IsLocked(1))

	_, ok = m.TryLock(1)
	a.False(ok)

	unlock2, ok := m.TryLock(2)
	a.True(ok)
	unlock2()

	unlock()
	unlock()
	a.False(m.IsLocked(1))

	_, ok = m.TryLock(1)
	a.True(ok)
}

func TestTryLockConcurrent(t *testing.T) {
	a := assert.New(t)

	m := New[string]()

	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := m.TryLock("k"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	a.Equal(int32(1), wins)
}
