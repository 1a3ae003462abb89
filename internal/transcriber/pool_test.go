package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func countingLoader(loads *int32, delay time.Duration) LoadFunc {
	return func(ctx context.Context, name string) (*Model, error) {
		atomic.AddInt32(loads, 1)
		time.Sleep(delay)
		if name == "missing" {
			return nil, ErrModelNotFound
		}
		return &Model{Name: name, Path: "/models/" + name}, nil
	}
}

func TestModelPoolLoadsOnce(t *testing.T) {
	a := assert.New(t)

	var loads int32
	p := NewModelPool(countingLoader(&loads, 10*time.Millisecond), 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			m, release, err := p.Acquire(context.Background(), "base")
			if a.NoError(err) {
				a.Equal("base", m.Name)
				release()
			}
		}()
	}
	wg.Wait()

	a.Equal(int32(1), atomic.LoadInt32(&loads))
	a.Equal([]string{"base"}, p.Cached())
}

func TestModelPoolEvictsLeastRecentlyUsed(t *testing.T) {
	a := assert.New(t)

	var loads int32
	p := NewModelPool(countingLoader(&loads, 0), 2)
	ctx := context.Background()

	use := func(name string) {
		_, release, err := p.Acquire(ctx, name)
		a.NoError(err)
		release()
	}

	use("tiny")
	use("base")
	use("tiny")
	use("small")

	a.Equal([]string{"small", "tiny"}, p.Cached())
	a.Equal(int32(3), atomic.LoadInt32(&loads))
}

func TestModelPoolKeepsModelsInUse(t *testing.T) {
	a := assert.New(t)

	var loads int32
	p := NewModelPool(countingLoader(&loads, 0), 1)
	ctx := context.Background()

	_, releaseTiny, err := p.Acquire(ctx, "tiny")
	a.NoError(err)

	_, releaseBase, err := p.Acquire(ctx, "base")
	a.NoError(err)

	a.Equal([]string{"base", "tiny"}, p.Cached())

	releaseTiny()
	a.Equal([]string{"base"}, p.Cached())

	releaseBase()
	releaseBase()
	a.Equal([]string{"base"}, p.Cached())
}

func TestModelPoolDoesNotLimitHolders(t *testing.T) {
	a := assert.New(t)

	var loads int32
	p := NewModelPool(countingLoader(&loads, 0), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var releases []func()
	for i := 0; i < 4; i++ {
		_, release, err := p.Acquire(ctx, "base")
		if !a.NoError(err) {
			return
		}
		releases = append(releases, release)
	}

	a.Equal(int32(1), atomic.LoadInt32(&loads))

	for _, release := range releases {
		release()
	}
	a.Equal([]string{"base"}, p.Cached())
}

func TestModelPoolLoadError(t *testing.T) {
	a := assert.New(t)

	var loads int32
	p := NewModelPool(countingLoader(&loads, 0), 1)

	_, _, err := p.Acquire(context.Background(), "missing")
	a.ErrorIs(err, ErrModelNotFound)
	a.Len(p.Cached(), 0)

	_, release, err := p.Acquire(context.Background(), "base")
	a.NoError(err)
	release()
}

func TestModelPoolClose(t *testing.T) {
	a := assert.New(t)

	var loads int32
	p := NewModelPool(countingLoader(&loads, 0), 2)

	_, release, err := p.Acquire(context.Background(), "base")
	a.NoError(err)
	release()

	a.NoError(p.Close())
	a.Len(p.Cached(), 0)

	_, _, err = p.Acquire(context.Background(), "base")
	a.ErrorIs(err, ErrPoolClosed)
}

func TestFileLoader(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()
	a.NoError(os.WriteFile(filepath.Join(dir, "ggml-base.bin"), []byte("model"), 0644))
	a.NoError(os.WriteFile(filepath.Join(dir, "ggml-empty.bin"), nil, 0644))

	load := FileLoader(dir)

	m, err := load(context.Background(), "base")
	a.NoError(err)
	a.Equal(filepath.Join(dir, "ggml-base.bin"), m.Path)

	for _, name := range []string{"large", "empty", "", "../base"} {
		_, err := load(context.Background(), name)
		a.ErrorIs(err, ErrModelNotFound, fmt.Sprintf("%q", name))
	}
}
