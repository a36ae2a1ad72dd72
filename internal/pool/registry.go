package pool

import (
	"sync"
	"sync/atomic"
)

// Registry owns the current Pool and is the only writer to it. Readers call
// Current and get an immutable snapshot; Reload builds a replacement pool
// fully off to the side and publishes it with a single atomic pointer swap,
// so a concurrent reader observes either the old pool or the new one in
// full, never a mixture.
type Registry struct {
	path string
	cur  atomic.Pointer[Pool]
	mu   sync.Mutex // serialises concurrent reloads
}

// NewRegistry creates a Registry reading the agents document at path. The
// registry starts empty; call Reload to perform the initial load.
func NewRegistry(path string) *Registry {
	r := &Registry{path: path}
	r.cur.Store(Empty())
	return r
}

// Path returns the agents document path the registry loads from.
func (r *Registry) Path() string {
	return r.path
}

// Current returns the live pool snapshot. It never returns nil.
func (r *Registry) Current() *Pool {
	return r.cur.Load()
}

// Reload rebuilds the pool from the agents document and swaps it in
// atomically. If the document fails to read or validate, the running pool
// is left untouched and the error is returned; a partially-valid pool is
// never published.
func (r *Registry) Reload() (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := LoadFile(r.path)
	if err != nil {
		return nil, err
	}
	r.cur.Store(p)
	return p, nil
}
