// Package keylock hands out non-blocking per-key locks.
package keylock

import (
	"sync"
)

type Map[K comparable] struct {
	m    sync.Mutex
	held map[K]struct{}
}

func New[K comparable]() *Map[K] {
	return &Map[K]{held: make(map[K]struct{})}
}

// TryLock takes the lock for key if nobody holds it. The returned function
// releases it and is safe to call more than once.
func (m *Map[K]) TryLock(key K) (func(), bool) {
	m.m.Lock()
	defer m.m.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, false
	}

	m.held[key] = struct{}{}

	var once sync.Once

	return func() {
		once.Do(func() {
			m.m.Lock()
			delete(m.held, key)
			m.m.Unlock()
		})
	}, true
}

func (m *Map[K]) IsLocked(key K) bool {
	m.m.Lock()
	defer m.m.Unlock()

	_, ok := m.held[key]

	return ok
}
