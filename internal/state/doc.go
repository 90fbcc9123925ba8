// Package state provides the observable primitives the console's stores are built from.
//
// # Overview
//
// Every piece of client-side state (collections, loading flags, preferences,
// notifications) lives in an Atom. Read-only views such as filtered or
// aggregated collections are Computed values derived from one or more atoms.
//
// # Core Types
//
// Atom:
//   - Holds a single value behind a sync.RWMutex
//   - Set/Update replace the value and notify subscribers synchronously
//   - Subscribe returns an unsubscribe function
//
// Computed:
//   - Created with Derive, Derive2, Derive3 or Derive4
//   - Recomputes whenever any dependency changes (push based, no debouncing)
//   - Has no write path of its own; Close detaches it from its dependencies
//
// # Update Semantics
//
//	count := state.NewAtom(0)
//	doubled := state.Derive(count, func(n int) int { return n * 2 })
//	count.Set(21)
//	doubled.Get() // 42
//
// Subscribers are called after the write has been stored and outside the
// lock, so a subscriber may read any atom (including the one that changed) or
// write to other atoms. Subscribers are not called on Subscribe; call Get for
// the current value.
//
// # Concurrency Model
//
// Atoms are safe for concurrent use. Individual writes are atomic. Multi-step
// flows (read, await a request, write) are not isolated from other writers;
// callers that need ordering guarantees layer them on top (see the store
// package's fetch sequence numbers).
//
// A Computed value serialises its recomputation so the stored value always
// reflects the dependency values read by the most recent recompute.
//
// # Copying
//
// Atoms store values as given. Callers that keep maps or slices in an atom
// must treat them as immutable and replace them wholesale (copy, modify, Set),
// which is what the store package does for its item maps.
package state
