// Package store provides Collection, a generic observable set of entities
// backed by a REST endpoint.
//
// A Collection owns its entities as an insertion-ordered Entries snapshot
// keyed by an identity field, plus loading, error, filter, sort and
// pagination state. Every piece is a state atom; FilteredItems, SortedItems
// and PaginatedItems recompute synchronously from them and never trigger a
// request.
//
// Fetch replaces the entities wholesale with the normalised response. Fetches
// carry sequence numbers: a response that lands after a newer one has been
// applied is dropped, and optimistic writes made while a fetch was in flight
// are replayed on top of its response.
//
// Create, Update and Delete validate before any request is sent and patch
// local state only after the backend accepts the change. OptimisticUpdate
// writes first and returns a token for Rollback or Commit.
//
// Collections with Persistent set mirror their entities to a Storage under
// "<PersistKey>.items".
package store
