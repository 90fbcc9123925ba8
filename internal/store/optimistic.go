package store

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// OptimisticUpdate records a local write made ahead of server confirmation.
// Pass it to Rollback when the request fails or to Commit when it succeeds.
type OptimisticUpdate[T any] struct {
	ID            string
	PreviousValue T
	AppliedValue  T

	existed bool
	removed bool
	patch   map[string]any
	mark    uint64
	done    bool
}

// OptimisticUpdate merges patch into the entity stored under id immediately.
func (c *Collection[T]) OptimisticUpdate(id string, patch map[string]any) (*OptimisticUpdate[T], error) {
	var (
		tok  *OptimisticUpdate[T]
		mErr error
	)
	c.items.UpdateIf(func(cur Entries[T]) (Entries[T], bool) {
		prev, ok := cur.Get(id)
		if !ok {
			return cur, false
		}
		applied, err := mergePatch(prev, patch)
		if err != nil {
			mErr = err
			return cur, false
		}
		c.mu.Lock()
		tok = &OptimisticUpdate[T]{
			ID:            id,
			PreviousValue: prev,
			AppliedValue:  applied,
			existed:       true,
			patch:         patch,
			mark:          c.fetchSeq,
		}
		c.pending[tok] = struct{}{}
		c.mu.Unlock()
		return cur.with(id, applied), true
	})
	if mErr != nil {
		return nil, mErr
	}
	if tok == nil {
		return nil, NewError(CodeNotFound, fmt.Sprintf("item with id %s not found", id))
	}
	c.emit(Event[T]{Type: EventUpdated, Items: []T{tok.AppliedValue}, IDs: []string{id}})
	return tok, nil
}

// OptimisticRemove drops id immediately. Rollback restores it.
func (c *Collection[T]) OptimisticRemove(id string) (*OptimisticUpdate[T], error) {
	var tok *OptimisticUpdate[T]
	c.items.UpdateIf(func(cur Entries[T]) (Entries[T], bool) {
		prev, ok := cur.Get(id)
		if !ok {
			return cur, false
		}
		c.mu.Lock()
		tok = &OptimisticUpdate[T]{ID: id, PreviousValue: prev, existed: true, removed: true, mark: c.fetchSeq}
		c.pending[tok] = struct{}{}
		c.mu.Unlock()
		return cur.without(id), true
	})
	if tok == nil {
		return nil, NewError(CodeNotFound, fmt.Sprintf("item with id %s not found", id))
	}
	c.emit(Event[T]{Type: EventDeleted, IDs: []string{id}})
	return tok, nil
}

// Rollback restores the value tok replaced. Rolling back a settled token is a
// no-op.
func (c *Collection[T]) Rollback(tok *OptimisticUpdate[T]) {
	if tok == nil {
		return
	}
	var restored bool
	c.items.UpdateIf(func(cur Entries[T]) (Entries[T], bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if tok.done {
			return cur, false
		}
		tok.done = true
		delete(c.pending, tok)
		restored = true
		if !tok.existed {
			return cur.without(tok.ID), true
		}
		return cur.with(tok.ID, tok.PreviousValue), true
	})
	if restored {
		klog.V(2).InfoS("Rolled back optimistic write", "store", c.name, "id", tok.ID)
		typ := EventUpdated
		if tok.removed {
			typ = EventCreated
		}
		c.emit(Event[T]{Type: typ, Items: []T{tok.PreviousValue}, IDs: []string{tok.ID}})
	}
}

// Commit discards tok after the server accepted the write.
func (c *Collection[T]) Commit(tok *OptimisticUpdate[T]) {
	if tok == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tok.done = true
	delete(c.pending, tok)
}

// Pending reports how many optimistic writes are unsettled.
func (c *Collection[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Failure pairs a batch input with its error.
type Failure[I any] struct {
	Item I
	Err  *StoreError
}

// BatchResult reports the outcome of a batch operation.
type BatchResult[I any] struct {
	Succeeded []I
	Failed    []Failure[I]
}

// Err combines every failure, or returns nil.
func (r BatchResult[I]) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, f.Err)
	}
	return err
}

func (r *BatchResult[I]) record(item I, err error) {
	if err == nil {
		r.Succeeded = append(r.Succeeded, item)
		return
	}
	se, ok := AsStoreError(err)
	if !ok {
		se = wrapError(CodeValidation, err)
	}
	r.Failed = append(r.Failed, Failure[I]{Item: item, Err: se})
}

// Change is one entry of UpdateMany.
type Change struct {
	ID    string
	Patch map[string]any
}

// CreateMany creates items one after another.
func (c *Collection[T]) CreateMany(ctx context.Context, items []T) BatchResult[T] {
	var res BatchResult[T]
	for _, item := range items {
		created, err := c.Create(ctx, item)
		if err != nil {
			res.record(item, err)
			continue
		}
		res.record(created, nil)
	}
	return res
}

// UpdateMany applies changes one after another and emits batch_updated with
// the updated entities.
func (c *Collection[T]) UpdateMany(ctx context.Context, changes []Change) BatchResult[T] {
	var res BatchResult[T]
	for _, ch := range changes {
		updated, err := c.Update(ctx, ch.ID, ch.Patch)
		if err != nil {
			cur, _ := c.Get(ch.ID)
			res.record(cur, err)
			continue
		}
		res.record(updated, nil)
	}
	c.emit(Event[T]{Type: EventBatchUpdated, Items: res.Succeeded})
	return res
}

// DeleteMany deletes ids one after another.
func (c *Collection[T]) DeleteMany(ctx context.Context, ids []string) BatchResult[string] {
	var res BatchResult[string]
	for _, id := range ids {
		res.record(id, c.Delete(ctx, id))
	}
	return res
}
