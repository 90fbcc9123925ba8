package state

import (
	"sync"
)

// Readable is implemented by Atom and Computed.
type Readable[T any] interface {
	Get() T
	Subscribe(fn func(T)) (unsubscribe func())
}

// Ensure both observable types satisfy Readable at compile time.
var (
	_ Readable[int] = (*Atom[int])(nil)
	_ Readable[int] = (*Computed[int])(nil)
)

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Atom is a mutable observable value.
type Atom[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   []subscriber[T]
	nextID uint64
}

// NewAtom returns an Atom holding initial.
func NewAtom[T any](initial T) *Atom[T] {
	return &Atom[T]{value: initial}
}

// Get returns the current value.
func (a *Atom[T]) Get() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Set stores value and notifies subscribers.
func (a *Atom[T]) Set(value T) {
	subs := a.store(value)
	notify(subs, value)
}

// Update applies fn to the current value and stores the result atomically.
func (a *Atom[T]) Update(fn func(T) T) T {
	a.mu.Lock()
	next := fn(a.value)
	a.value = next
	subs := a.snapshotLocked()
	a.mu.Unlock()

	notify(subs, next)
	return next
}

// UpdateIf applies fn to the current value. Subscribers are notified only when
// fn reports a change.
func (a *Atom[T]) UpdateIf(fn func(T) (T, bool)) (T, bool) {
	a.mu.Lock()
	next, changed := fn(a.value)
	if !changed {
		cur := a.value
		a.mu.Unlock()
		return cur, false
	}
	a.value = next
	subs := a.snapshotLocked()
	a.mu.Unlock()

	notify(subs, next)
	return next, true
}

// Subscribe registers fn to be called after every write.
func (a *Atom[T]) Subscribe(fn func(T)) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.subs = append(a.subs, subscriber[T]{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { a.unsubscribe(id) })
	}
}

// Listeners reports the number of live subscriptions.
func (a *Atom[T]) Listeners() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subs)
}

func (a *Atom[T]) store(value T) []subscriber[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = value
	return a.snapshotLocked()
}

func (a *Atom[T]) snapshotLocked() []subscriber[T] {
	if len(a.subs) == 0 {
		return nil
	}
	dup := make([]subscriber[T], len(a.subs))
	copy(dup, a.subs)
	return dup
}

func (a *Atom[T]) unsubscribe(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.subs {
		if s.id == id {
			a.subs = append(a.subs[:i:i], a.subs[i+1:]...)
			return
		}
	}
}

func notify[T any](subs []subscriber[T], value T) {
	for _, s := range subs {
		s.fn(value)
	}
}
