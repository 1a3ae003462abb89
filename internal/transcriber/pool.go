package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

var (
	ErrModelNotFound = fmt.Errorf("model file not found")
	ErrPoolClosed    = fmt.Errorf("model pool is closed")
)

type Model struct {
	Name string
	Path string
}

type LoadFunc func(ctx context.Context, name string) (*Model, error)

// FileLoader resolves model names to {modelsPath}/ggml-{name}.bin.
func FileLoader(modelsPath string) LoadFunc {
	return func(ctx context.Context, name string) (*Model, error) {
		if name == "" || filepath.Base(name) != name {
			return nil, fmt.Errorf("transcriber.FileLoader: invalid model name %q: %w", name, ErrModelNotFound)
		}

		p := filepath.Join(modelsPath, "ggml-"+name+".bin")

		st, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("transcriber.FileLoader: %s: %w", p, ErrModelNotFound)
		}
		if st.IsDir() || st.Size() == 0 {
			return nil, fmt.Errorf("transcriber.FileLoader: %s is not a model file: %w", p, ErrModelNotFound)
		}

		return &Model{Name: name, Path: p}, nil
	}
}

type poolEntry struct {
	model    *Model
	refs     int
	lastUsed uint64
}

// ModelPool shares loaded models between concurrent transcriptions. At most
// maxCached models stay loaded; idle models are dropped least recently used
// first. How many transcriptions run at once is up to the caller.
type ModelPool struct {
	load      LoadFunc
	group     singleflight.Group
	maxCached int

	m       sync.Mutex
	entries map[string]*poolEntry
	tick    uint64
	closed  bool
}

func NewModelPool(load LoadFunc, maxCached int) *ModelPool {
	if maxCached < 1 {
		maxCached = 1
	}

	return &ModelPool{
		load:      load,
		maxCached: maxCached,
		entries:   make(map[string]*poolEntry),
	}
}

// Acquire returns the named model, loading it if nobody else has. The
// returned function must be called once the model is no longer in use.
func (p *ModelPool) Acquire(ctx context.Context, name string) (*Model, func(), error) {
	if e, err := p.take(name, nil); err != nil {
		return nil, nil, fmt.Errorf("transcriber.ModelPool.Acquire: %w", err)
	} else if e != nil {
		return e.model, p.releaser(e), nil
	}

	v, err, _ := p.group.Do(name, func() (interface{}, error) {
		return p.load(ctx, name)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("transcriber.ModelPool.Acquire: %w", err)
	}

	e, err := p.take(name, v.(*Model))
	if err != nil {
		return nil, nil, fmt.Errorf("transcriber.ModelPool.Acquire: %w", err)
	}

	return e.model, p.releaser(e), nil
}

// take claims the cached entry for name. With a loaded model it adds the
// model to the cache if it isn't there yet; without one it returns nil on a
// cache miss.
func (p *ModelPool) take(name string, loaded *Model) (*poolEntry, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	e, ok := p.entries[name]
	if !ok {
		if loaded == nil {
			return nil, nil
		}

		e = &poolEntry{model: loaded}
		p.entries[name] = e
	}

	p.tick++
	e.refs++
	e.lastUsed = p.tick

	p.evictLocked()

	return e, nil
}

func (p *ModelPool) releaser(e *poolEntry) func() {
	var once sync.Once

	return func() {
		once.Do(func() {
			p.m.Lock()
			e.refs--
			p.evictLocked()
			p.m.Unlock()
		})
	}
}

func (p *ModelPool) evictLocked() {
	for len(p.entries) > p.maxCached {
		var victim string
		var oldest uint64

		for name, e := range p.entries {
			if e.refs > 0 {
				continue
			}
			if victim == "" || e.lastUsed < oldest {
				victim, oldest = name, e.lastUsed
			}
		}

		if victim == "" {
			return
		}

		delete(p.entries, victim)
	}
}

// Cached lists the names of the loaded models.
func (p *ModelPool) Cached() []string {
	p.m.Lock()
	defer p.m.Unlock()

	var a []string
	for name := range p.entries {
		a = append(a, name)
	}
	sort.Strings(a)

	return a
}

func (p *ModelPool) Close() error {
	p.m.Lock()
	defer p.m.Unlock()

	p.closed = true
	p.entries = make(map[string]*poolEntry)

	return nil
}
