// Package timers provides an owned registry of cancellable delayed tasks keyed by id.
//
// A key has at most one live timer. Scheduling a key that already has a
// pending timer stops and replaces it. A timer that fires removes its own
// entry before running its task, so Len never counts fired timers.
package timers

import (
	"sync"
	"time"
)

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Registry owns delayed tasks keyed by id. The zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	gen     uint64
}

// Schedule runs fn once after d unless the id is cancelled or rescheduled first.
func (r *Registry) Schedule(id string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]entry)
	}
	if prev, ok := r.entries[id]; ok {
		prev.timer.Stop()
	}
	r.gen++
	gen := r.gen
	t := time.AfterFunc(d, func() {
		if !r.claim(id, gen) {
			return
		}
		fn()
	})
	r.entries[id] = entry{timer: t, gen: gen}
}

// claim removes the entry for id if it still belongs to generation gen.
// A stale callback (one whose timer was replaced or cancelled after it had
// already started) loses the claim and does nothing.
func (r *Registry) claim(id string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.gen != gen {
		return false
	}
	delete(r.entries, id)
	return true
}

// Cancel stops the pending timer for id. It reports whether one was pending.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, id)
	return true
}

// CancelAll stops every pending timer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, id)
	}
}

// Has reports whether id has a pending timer.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of pending timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Keys returns the ids with pending timers.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for id := range r.entries {
		keys = append(keys, id)
	}
	return keys
}
