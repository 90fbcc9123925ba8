package prefs

import (
	"strconv"

	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/state"
)

// Persistent returns an atom mirrored to key. The atom starts from the stored
// value, or def when the key is missing or undecodable. Writes to the atom are
// persisted; changes to the key (including from other processes) update the
// atom.
func Persistent[T comparable](s *Store, key string, def T, encode func(T) string, decode func(string) (T, error)) *state.Atom[T] {
	initial := def
	if raw, ok := s.Get(key); ok {
		if v, err := decode(raw); err == nil {
			initial = v
		}
	}
	a := state.NewAtom(initial)

	state.NewWriteBack[T](a, func(v T) {
		if err := s.Set(key, encode(v)); err != nil {
			klog.ErrorS(err, "Persist preference", "key", key)
		}
	}).Attach()
	s.Subscribe(key, func(raw string, ok bool) {
		next := def
		if ok {
			v, err := decode(raw)
			if err != nil {
				return
			}
			next = v
		}
		if a.Get() != next {
			a.Set(next)
		}
	})
	return a
}

// String is a persistent string atom.
func String(s *Store, key, def string) *state.Atom[string] {
	return Persistent(s, key, def,
		func(v string) string { return v },
		func(raw string) (string, error) { return raw, nil },
	)
}

// Bool is a persistent boolean atom.
func Bool(s *Store, key string, def bool) *state.Atom[bool] {
	return Persistent(s, key, def, strconv.FormatBool, strconv.ParseBool)
}
