// Package debounce provides a registry of per-resource debounced actions.
//
// Timers are keyed by (kind, id) so bursts on one resource never delay or
// coalesce with another resource's updates. A timer whose audience
// disappears before it fires simply runs with no one to deliver to; callers
// are expected to make their actions harmless in that case rather than
// coordinate cancellation.
package debounce

import (
	"sync"
	"time"
)

// Kind names a class of debounced resource, e.g. "output" or "signal".
type Kind string

type key struct {
	kind Kind
	id   string
}

// Registry tracks pending debounce timers keyed by (kind, id).
// It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	timers map[key]*time.Timer
}

// NewRegistry creates an empty debounce registry.
func NewRegistry() *Registry {
	return &Registry{timers: make(map[key]*time.Timer)}
}

// Trigger schedules fn to run after delay. If a timer for the same
// (kind, id) is already pending it is reset, collapsing rapid successive
// triggers into one invocation of the latest fn.
func (r *Registry) Trigger(kind Kind, id string, delay time.Duration, fn func()) {
	k := key{kind: kind, id: id}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[k]; ok {
		t.Stop()
	}
	r.timers[k] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, k)
		r.mu.Unlock()
		fn()
	})
}

// Cancel stops any pending timer for (kind, id).
// Returns true if a timer was pending.
func (r *Registry) Cancel(kind Kind, id string) bool {
	k := key{kind: kind, id: id}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[k]
	if ok {
		t.Stop()
		delete(r.timers, k)
	}
	return ok
}

// CancelID stops all pending timers for the given id across every kind.
// Used when a session is destroyed and all of its debounces must go.
func (r *Registry) CancelID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, t := range r.timers {
		if k.id == id {
			t.Stop()
			delete(r.timers, k)
		}
	}
}

// CancelAll stops every pending timer. Used on engine teardown so no state
// leaks across a zero-clients window.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, t := range r.timers {
		t.Stop()
		delete(r.timers, k)
	}
}

// Pending returns the number of timers currently scheduled.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
