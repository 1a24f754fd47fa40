// Package asset loads the Lottie animations bound to carousel slots and
// tracks every live binding so none outlives its slot.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/wheel"
)

// Loader errors.
var (
	ErrClosed       = errors.New("asset loader closed")
	ErrInvalidAsset = errors.New("invalid animation asset")
)

// Meta is the header of a Lottie animation.
type Meta struct {
	Name      string  `json:"nm"`
	Version   string  `json:"v"`
	FrameRate float64 `json:"fr"`
	InPoint   float64 `json:"ip"`
	OutPoint  float64 `json:"op"`
	Width     int     `json:"w"`
	Height    int     `json:"h"`
}

// Duration returns the length of one loop.
func (m Meta) Duration() time.Duration {
	if m.FrameRate <= 0 {
		return 0
	}
	frames := m.OutPoint - m.InPoint
	return time.Duration(frames / m.FrameRate * float64(time.Second))
}

// Loader binds animations from a file system. Parsed headers are cached per
// path; bindings are counted until released.
type Loader struct {
	fsys fs.FS

	mu     sync.Mutex
	cache  map[string]Meta
	live   map[uint64]*Handle
	nextID uint64
	closed bool
}

// NewLoader creates a loader reading from fsys.
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{
		fsys:  fsys,
		cache: make(map[string]Meta),
		live:  make(map[uint64]*Handle),
	}
}

// Handle is one live binding of an animation into a container.
type Handle struct {
	id        uint64
	container string
	path      string
	meta      Meta
	loader    *Loader
	released  atomic.Bool
}

// Bind loads path (from cache when possible) and registers a new looping
// binding for container.
func (l *Loader) Bind(container, path string) (wheel.Handle, error) {
	meta, err := l.meta(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	l.nextID++
	h := &Handle{
		id:        l.nextID,
		container: container,
		path:      path,
		meta:      meta,
		loader:    l,
	}
	l.live[h.id] = h
	return h, nil
}

func (l *Loader) meta(path string) (Meta, error) {
	l.mu.Lock()
	if m, ok := l.cache[path]; ok {
		l.mu.Unlock()
		return m, nil
	}
	l.mu.Unlock()

	data, err := fs.ReadFile(l.fsys, path)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read animation %s: %w", path, err)
	}

	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("%w: %s: %v", ErrInvalidAsset, path, err)
	}
	if m.FrameRate <= 0 || m.OutPoint <= m.InPoint {
		return Meta{}, fmt.Errorf("%w: %s has no frames", ErrInvalidAsset, path)
	}

	l.mu.Lock()
	l.cache[path] = m
	l.mu.Unlock()
	return m, nil
}

// Release ends the binding. Calling it more than once is harmless.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.loader.mu.Lock()
	delete(h.loader.live, h.id)
	h.loader.mu.Unlock()
}

// Container returns the container the animation is bound to.
func (h *Handle) Container() string { return h.container }

// Path returns the asset path.
func (h *Handle) Path() string { return h.path }

// Meta returns the animation header.
func (h *Handle) Meta() Meta { return h.meta }

// Live returns the number of unreleased bindings.
func (l *Loader) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Close releases every outstanding binding and rejects new ones.
func (l *Loader) Close() {
	l.mu.Lock()
	leaked := make([]*Handle, 0, len(l.live))
	for _, h := range l.live {
		leaked = append(leaked, h)
	}
	l.closed = true
	l.mu.Unlock()

	if len(leaked) > 0 {
		log.Warn().Int("count", len(leaked)).Msg("Releasing animation bindings left open at shutdown")
	}
	for _, h := range leaked {
		h.Release()
	}
}
