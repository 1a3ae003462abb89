// Package toollimit caps how many copies of each external tool run at once.
package toollimit

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

type Tool string

const (
	Download   Tool = "download"
	Transcode  Tool = "transcode"
	Transcribe Tool = "transcribe"
)

type Limits struct {
	m map[Tool]*semaphore.Weighted
}

// New makes limits from per-tool capacities. Tools that are missing or
// have a capacity below one get a capacity of one.
func New(capacities map[Tool]int) *Limits {
	l := &Limits{m: make(map[Tool]*semaphore.Weighted)}

	for _, tool := range []Tool{Download, Transcode, Transcribe} {
		n := capacities[tool]
		if n < 1 {
			n = 1
		}

		l.m[tool] = semaphore.NewWeighted(int64(n))
	}

	return l
}

// Do runs fn once a slot for tool is free. A nil *Limits runs fn directly.
func (l *Limits) Do(ctx context.Context, tool Tool, fn func() error) error {
	if l == nil {
		return fn()
	}

	sem, ok := l.m[tool]
	if !ok {
		return fmt.Errorf("toollimit.Limits.Do: unknown tool %q", tool)
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("toollimit.Limits.Do: waiting for %s slot: %w", tool, err)
	}
	defer sem.Release(1)

	return fn()
}
