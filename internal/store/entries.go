package store

// Entries is an immutable, insertion-ordered snapshot of a collection keyed by
// entity id. Writers replace the whole value.
type Entries[T any] struct {
	keys  []string
	byKey map[string]T
}

func newEntries[T any](items []T, key func(T) string) Entries[T] {
	e := Entries[T]{byKey: make(map[string]T, len(items))}
	for _, item := range items {
		id := key(item)
		if id == "" {
			continue
		}
		if _, dup := e.byKey[id]; !dup {
			e.keys = append(e.keys, id)
		}
		e.byKey[id] = item
	}
	return e
}

// Len returns the number of entities.
func (e Entries[T]) Len() int { return len(e.keys) }

// Get returns the entity stored under id.
func (e Entries[T]) Get(id string) (T, bool) {
	v, ok := e.byKey[id]
	return v, ok
}

// Has reports whether id is present.
func (e Entries[T]) Has(id string) bool {
	_, ok := e.byKey[id]
	return ok
}

// Keys returns the ids in insertion order.
func (e Entries[T]) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Values returns the entities in insertion order.
func (e Entries[T]) Values() []T {
	out := make([]T, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, e.byKey[k])
	}
	return out
}

func (e Entries[T]) with(id string, v T) Entries[T] {
	next := Entries[T]{byKey: make(map[string]T, len(e.byKey)+1)}
	for k, val := range e.byKey {
		next.byKey[k] = val
	}
	next.keys = append(make([]string, 0, len(e.keys)+1), e.keys...)
	if _, ok := e.byKey[id]; !ok {
		next.keys = append(next.keys, id)
	}
	next.byKey[id] = v
	return next
}

func (e Entries[T]) without(id string) Entries[T] {
	if _, ok := e.byKey[id]; !ok {
		return e
	}
	next := Entries[T]{byKey: make(map[string]T, len(e.byKey))}
	for _, k := range e.keys {
		if k == id {
			continue
		}
		next.keys = append(next.keys, k)
		next.byKey[k] = e.byKey[k]
	}
	return next
}
