package ratelimit

import "sync"

// Registry tracks keys that currently have a request in flight.
//
// Acquire hands out a release function guarded by sync.Once, so a key is
// removed exactly once no matter how many times the caller defers or calls it.
// Typical use:
//
//	release, ok := registry.Acquire(key)
//	if !ok {
//	    return cached
//	}
//	defer release()
type Registry[K comparable] struct {
	mu      sync.Mutex
	pending map[K]struct{}
	scope   string
	metrics Metrics
}

// NewRegistry creates an empty registry. A nil metrics disables recording.
func NewRegistry[K comparable](scope string, metrics Metrics) *Registry[K] {
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	return &Registry[K]{
		pending: make(map[K]struct{}),
		scope:   scope,
		metrics: metrics,
	}
}

// Acquire marks key as in flight. It returns ok=false, and a no-op release,
// when the key is already held by another caller.
func (r *Registry[K]) Acquire(key K) (release func(), ok bool) {
	r.mu.Lock()
	if _, busy := r.pending[key]; busy {
		r.mu.Unlock()
		r.metrics.RecordDeduplicated(r.scope)
		return func() {}, false
	}
	r.pending[key] = struct{}{}
	n := len(r.pending)
	r.mu.Unlock()
	r.metrics.SetInFlight(r.scope, n)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.pending, key)
			n := len(r.pending)
			r.mu.Unlock()
			r.metrics.SetInFlight(r.scope, n)
		})
	}, true
}

// InFlight reports whether key is currently held.
func (r *Registry[K]) InFlight(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}

// Len returns the number of keys in flight.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
