package state

import "sync"

// Computed is a read-only value derived from other observables.
type Computed[T any] struct {
	out     *Atom[T]
	mu      sync.Mutex
	compute func() T
	unsubs  []func()
	closed  bool
}

func newComputed[T any](compute func() T) *Computed[T] {
	return &Computed[T]{
		out:     NewAtom(compute()),
		compute: compute,
	}
}

// Get returns the most recently computed value.
func (c *Computed[T]) Get() T {
	return c.out.Get()
}

// Subscribe registers fn to be called after every recompute.
func (c *Computed[T]) Subscribe(fn func(T)) func() {
	return c.out.Subscribe(fn)
}

// Close detaches c from its dependencies. The last value stays readable.
func (c *Computed[T]) Close() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.closed = true
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

func (c *Computed[T]) recompute() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	value := c.compute()
	subs := c.out.store(value)
	c.mu.Unlock()

	notify(subs, value)
}

func (c *Computed[T]) track(unsub func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubs = append(c.unsubs, unsub)
}

func watch[A, T any](c *Computed[T], dep Readable[A]) {
	c.track(dep.Subscribe(func(A) { c.recompute() }))
}

// Derive returns a value computed from a.
func Derive[A, T any](a Readable[A], fn func(A) T) *Computed[T] {
	c := newComputed(func() T { return fn(a.Get()) })
	watch(c, a)
	return c
}

// Derive2 returns a value computed from a and b.
func Derive2[A, B, T any](a Readable[A], b Readable[B], fn func(A, B) T) *Computed[T] {
	c := newComputed(func() T { return fn(a.Get(), b.Get()) })
	watch(c, a)
	watch(c, b)
	return c
}

// Derive3 returns a value computed from three observables.
func Derive3[A, B, C, T any](a Readable[A], b Readable[B], cc Readable[C], fn func(A, B, C) T) *Computed[T] {
	c := newComputed(func() T { return fn(a.Get(), b.Get(), cc.Get()) })
	watch(c, a)
	watch(c, b)
	watch(c, cc)
	return c
}

// Derive4 returns a value computed from four observables.
func Derive4[A, B, C, D, T any](a Readable[A], b Readable[B], cc Readable[C], d Readable[D], fn func(A, B, C, D) T) *Computed[T] {
	c := newComputed(func() T { return fn(a.Get(), b.Get(), cc.Get(), d.Get()) })
	watch(c, a)
	watch(c, b)
	watch(c, cc)
	watch(c, d)
	return c
}

// Source is a type-erased dependency for DeriveFunc.
type Source interface {
	subscribeAny(fn func()) func()
}

type source[A any] struct{ r Readable[A] }

func (s source[A]) subscribeAny(fn func()) func() {
	return s.r.Subscribe(func(A) { fn() })
}

// On adapts r for use as a DeriveFunc dependency.
func On[A any](r Readable[A]) Source {
	return source[A]{r: r}
}

// DeriveFunc returns a value computed by fn, recomputed whenever any of deps
// changes. fn reads its inputs itself.
func DeriveFunc[T any](fn func() T, deps ...Source) *Computed[T] {
	c := newComputed(fn)
	for _, d := range deps {
		c.track(d.subscribeAny(c.recompute))
	}
	return c
}
