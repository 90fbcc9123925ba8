package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/state"
)

// Storage persists string values by key. prefs.Store implements it.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Options configure a Collection.
type Options[T any] struct {
	Name string

	// IDField is the dotted JSON path of the identity field. Defaults to "id".
	IDField string
	// KeyFunc overrides IDField for composite keys.
	KeyFunc func(T) string

	// Endpoint is the collection URL relative to the API prefix. Without an
	// Endpoint or Transport the collection is local only.
	Endpoint  string
	ListKeys  []string
	Transport api.Transport

	Transform  func(json.RawMessage) (T, error)
	Validate   func(T) *StoreError
	Comparator func(a, b T) int

	Persistent bool
	PersistKey string
	Storage    Storage

	InitialData []T
}

// Snapshot is the combined state of a collection.
type Snapshot[T any] struct {
	Items      Entries[T]
	Loading    bool
	Error      *StoreError
	Filters    []Filter
	Sort       *Sort
	Pagination *Pagination
	LastFetch  time.Time
}

// Collection is an observable set of entities backed by a REST endpoint.
type Collection[T any] struct {
	name       string
	idField    string
	key        func(T) string
	customKey  bool
	endpoint   string
	listKeys   []string
	transport  api.Transport
	transform  func(json.RawMessage) (T, error)
	validate   func(T) *StoreError
	comparator func(a, b T) int
	storage    Storage
	persistKey string

	items      *state.Atom[Entries[T]]
	loading    *state.Atom[bool]
	err        *state.Atom[*StoreError]
	filters    *state.Atom[[]Filter]
	sort       *state.Atom[*Sort]
	pagination *state.Atom[*Pagination]
	lastFetch  *state.Atom[time.Time]

	filtered  *state.Computed[[]T]
	sorted    *state.Computed[[]T]
	paginated *state.Computed[[]T]
	count     *state.Computed[int]
	empty     *state.Computed[bool]
	snapshot  *state.Computed[Snapshot[T]]

	mu         sync.Mutex
	inflight   int
	fetchSeq   uint64
	appliedSeq uint64
	pending    map[*OptimisticUpdate[T]]struct{}
	lastQuery  url.Values

	events  events[T]
	persist func()
}

// New builds a collection from opts.
func New[T any](opts Options[T]) *Collection[T] {
	c := &Collection[T]{
		name:       opts.Name,
		idField:    opts.IDField,
		key:        opts.KeyFunc,
		customKey:  opts.KeyFunc != nil,
		endpoint:   opts.Endpoint,
		listKeys:   opts.ListKeys,
		transport:  opts.Transport,
		transform:  opts.Transform,
		validate:   opts.Validate,
		comparator: opts.Comparator,
		pending:    make(map[*OptimisticUpdate[T]]struct{}),
	}
	if c.idField == "" {
		c.idField = "id"
	}
	if c.key == nil {
		c.key = fieldKey[T](c.idField)
	}
	if c.transform == nil {
		c.transform = decodeJSON[T]
	}

	initial := newEntries(opts.InitialData, c.key)
	if opts.Persistent && opts.PersistKey != "" && opts.Storage != nil {
		c.storage = opts.Storage
		c.persistKey = opts.PersistKey + ".items"
		if restored, ok := c.restore(); ok {
			initial = restored
		}
	}

	c.items = state.NewAtom(initial)
	c.loading = state.NewAtom(false)
	c.err = state.NewAtom[*StoreError](nil)
	c.filters = state.NewAtom[[]Filter](nil)
	c.sort = state.NewAtom[*Sort](nil)
	c.pagination = state.NewAtom[*Pagination](nil)
	c.lastFetch = state.NewAtom(time.Time{})

	c.filtered = state.Derive2(c.items, c.filters, func(e Entries[T], f []Filter) []T {
		return applyFilters(e.Values(), f)
	})
	c.sorted = state.Derive2(c.filtered, c.sort, func(items []T, s *Sort) []T {
		return applySort(items, s, c.comparator)
	})
	c.paginated = state.Derive2(c.sorted, c.pagination, applyPagination[T])
	c.count = state.Derive(c.items, Entries[T].Len)
	c.empty = state.Derive(c.count, func(n int) bool { return n == 0 })
	c.snapshot = state.DeriveFunc(c.currentSnapshot,
		state.On[Entries[T]](c.items),
		state.On[bool](c.loading),
		state.On[*StoreError](c.err),
		state.On[[]Filter](c.filters),
		state.On[*Sort](c.sort),
		state.On[*Pagination](c.pagination),
		state.On[time.Time](c.lastFetch),
	)

	if c.storage != nil {
		c.persist = state.NewWriteBack[Entries[T]](c.items, c.save).Attach()
	}
	return c
}

func decodeJSON[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Endpoint returns the collection URL.
func (c *Collection[T]) Endpoint() string { return c.endpoint }

// Key returns the identity of item.
func (c *Collection[T]) Key(item T) string { return c.key(item) }

// Items is the entity map.
func (c *Collection[T]) Items() state.Readable[Entries[T]] { return c.items }

// Loading is true while any request is in flight.
func (c *Collection[T]) Loading() state.Readable[bool] { return c.loading }

// Err is the most recent failure, cleared by a successful fetch.
func (c *Collection[T]) Err() state.Readable[*StoreError] { return c.err }

// Filters is the active filter list.
func (c *Collection[T]) Filters() state.Readable[[]Filter] { return c.filters }

// Sort is the active sort, nil when unsorted.
func (c *Collection[T]) Sort() state.Readable[*Sort] { return c.sort }

// Pagination is the active page, nil when unpaginated.
func (c *Collection[T]) Pagination() state.Readable[*Pagination] { return c.pagination }

// FilteredItems are the entities passing every filter, in insertion order.
func (c *Collection[T]) FilteredItems() state.Readable[[]T] { return c.filtered }

// SortedItems are FilteredItems ordered by Sort.
func (c *Collection[T]) SortedItems() state.Readable[[]T] { return c.sorted }

// PaginatedItems is the current page of SortedItems.
func (c *Collection[T]) PaginatedItems() state.Readable[[]T] { return c.paginated }

// Count is the number of entities.
func (c *Collection[T]) Count() state.Readable[int] { return c.count }

// IsEmpty reports whether the collection holds no entities.
func (c *Collection[T]) IsEmpty() state.Readable[bool] { return c.empty }

// State combines every piece of collection state.
func (c *Collection[T]) State() state.Readable[Snapshot[T]] { return c.snapshot }

func (c *Collection[T]) currentSnapshot() Snapshot[T] {
	return Snapshot[T]{
		Items:      c.items.Get(),
		Loading:    c.loading.Get(),
		Error:      c.err.Get(),
		Filters:    c.filters.Get(),
		Sort:       c.sort.Get(),
		Pagination: c.pagination.Get(),
		LastFetch:  c.lastFetch.Get(),
	}
}

// Get returns the entity stored under id.
func (c *Collection[T]) Get(id string) (T, bool) {
	return c.items.Get().Get(id)
}

// Exists reports whether id is present.
func (c *Collection[T]) Exists(id string) bool {
	return c.items.Get().Has(id)
}

// Read returns the entity stored under id or a READ_ERROR.
func (c *Collection[T]) Read(id string) (T, error) {
	if v, ok := c.Get(id); ok {
		return v, nil
	}
	var zero T
	se := NewError(CodeRead, fmt.Sprintf("item with id %s not found", id))
	c.err.Set(se)
	return zero, se
}

// On registers fn for events of type t and returns its unsubscribe function.
func (c *Collection[T]) On(t EventType, fn func(Event[T])) func() {
	return c.events.on(t, fn)
}

func (c *Collection[T]) emit(ev Event[T]) {
	ev.Source = c.name
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now()
	}
	c.events.emit(ev)
}

// SetFilters replaces the filter list.
func (c *Collection[T]) SetFilters(filters []Filter) {
	c.filters.Set(append([]Filter(nil), filters...))
}

// AddFilter appends f to the filter list.
func (c *Collection[T]) AddFilter(f Filter) {
	c.filters.Update(func(cur []Filter) []Filter {
		return append(append([]Filter(nil), cur...), f)
	})
}

// RemoveFilter drops every filter on field.
func (c *Collection[T]) RemoveFilter(field string) {
	c.filters.Update(func(cur []Filter) []Filter {
		out := make([]Filter, 0, len(cur))
		for _, f := range cur {
			if f.Field != field {
				out = append(out, f)
			}
		}
		return out
	})
}

// ClearFilters removes all filters.
func (c *Collection[T]) ClearFilters() {
	c.filters.Set(nil)
}

// SetSort replaces the sort; nil disables sorting.
func (c *Collection[T]) SetSort(s *Sort) {
	c.sort.Set(s)
}

// SetPagination replaces the page selection; nil disables pagination.
func (c *Collection[T]) SetPagination(p *Pagination) {
	c.pagination.Set(p)
}

func (c *Collection[T]) begin() {
	c.mu.Lock()
	c.inflight++
	first := c.inflight == 1
	c.mu.Unlock()
	if first {
		c.loading.Set(true)
		c.emit(Event[T]{Type: EventLoadingStart})
	}
}

func (c *Collection[T]) end() {
	c.mu.Lock()
	c.inflight--
	last := c.inflight == 0
	c.mu.Unlock()
	if last {
		c.loading.Set(false)
		c.emit(Event[T]{Type: EventLoadingEnd})
	}
}

func (c *Collection[T]) fail(code, op string, err error) *StoreError {
	se := wrapError(code, err)
	klog.ErrorS(err, "Store operation failed", "store", c.name, "op", op, "code", se.Code)
	c.err.Set(se)
	c.emit(Event[T]{Type: EventError, Err: se})
	return se
}

func (c *Collection[T]) check(item T) *StoreError {
	if c.validate == nil {
		return nil
	}
	verr := c.validate(item)
	if verr == nil {
		return nil
	}
	se := verr.fresh()
	if se.Code == "" {
		se.Code = CodeValidation
	}
	c.err.Set(se)
	c.emit(Event[T]{Type: EventError, Err: se})
	return se
}

// Fail records err under code in the error slot, as the built-in operations
// do, and returns the resulting StoreError.
func (c *Collection[T]) Fail(code, op string, err error) *StoreError {
	return c.fail(code, op, err)
}

// ClearError empties the error slot.
func (c *Collection[T]) ClearError() {
	c.err.Set(nil)
}

// Validate runs the validator. A failure is recorded in the error slot.
func (c *Collection[T]) Validate(item T) *StoreError {
	return c.check(item)
}

// Busy marks a request in flight until the returned func is called.
func (c *Collection[T]) Busy() (done func()) {
	c.begin()
	var once sync.Once
	return func() { once.Do(c.end) }
}

func (c *Collection[T]) remote() bool {
	return c.transport != nil && c.endpoint != ""
}

func (c *Collection[T]) itemPath(id string) string {
	return c.endpoint + "/" + url.PathEscape(id)
}

// Fetch loads the collection from its endpoint and replaces every entity with
// the response. Filters, sort and pagination in params are applied first.
// Failures set Err and leave the entities untouched.
func (c *Collection[T]) Fetch(ctx context.Context, params *QueryParams) error {
	var query url.Values
	c.mu.Lock()
	if params != nil && params.Query != nil {
		c.lastQuery = params.Query
	}
	query = c.lastQuery
	c.mu.Unlock()

	if params != nil {
		if params.Filters != nil {
			c.SetFilters(params.Filters)
		}
		if params.Sort != nil {
			c.SetSort(params.Sort)
		}
		if params.Pagination != nil {
			c.SetPagination(params.Pagination)
		}
	}
	if !c.remote() {
		return nil
	}

	seq := c.beginFetch()
	c.begin()
	defer c.end()

	raw, err := c.transport.Send(ctx, http.MethodGet, api.WithQuery(c.endpoint, query), nil)
	if err != nil {
		return c.fail(CodeFetch, "fetch", err)
	}
	list, err := c.decodeList(raw)
	if err != nil {
		return c.fail(CodeFetch, "fetch", err)
	}
	if !c.applyFetch(seq, list) {
		klog.V(2).InfoS("Discarding superseded fetch", "store", c.name, "seq", seq)
		return nil
	}
	c.err.Set(nil)
	c.lastFetch.Set(now())
	c.emit(Event[T]{Type: EventFetched, Items: list})
	return nil
}

// Refresh re-fetches with the last query.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	return c.Fetch(ctx, nil)
}

func (c *Collection[T]) decodeList(raw json.RawMessage) ([]T, error) {
	res, err := api.DecodeList(raw, c.listKeys...)
	if err != nil {
		return nil, err
	}
	switch r := res.(type) {
	case api.Unrecognized:
		klog.InfoS("Unrecognized list response, treating as empty", "store", c.name, "bytes", len(r.Raw))
		return []T{}, nil
	case api.Items:
		out := make([]T, 0, len(r))
		for _, item := range r {
			v, err := c.transform(item)
			if err != nil {
				klog.ErrorS(err, "Skipping malformed entity", "store", c.name)
				continue
			}
			if c.key(v) == "" {
				klog.V(2).InfoS("Skipping entity without id", "store", c.name)
				continue
			}
			out = append(out, v)
		}
		return out, nil
	}
	return []T{}, nil
}

func (c *Collection[T]) beginFetch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchSeq++
	return c.fetchSeq
}

// applyFetch replaces the entities with list unless a newer fetch already
// landed. Optimistic writes made after this fetch started, and still pending,
// are re-applied on top of the response and rebased onto it.
func (c *Collection[T]) applyFetch(seq uint64, list []T) bool {
	_, applied := c.items.UpdateIf(func(cur Entries[T]) (Entries[T], bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if seq <= c.appliedSeq {
			return cur, false
		}
		c.appliedSeq = seq

		next := newEntries(list, c.key)
		for tok := range c.pending {
			if tok.mark < seq {
				continue
			}
			base, ok := next.Get(tok.ID)
			if !ok {
				continue
			}
			tok.PreviousValue = base
			tok.existed = true
			if tok.removed {
				next = next.without(tok.ID)
				continue
			}
			merged, err := mergePatch(base, tok.patch)
			if err != nil {
				klog.ErrorS(err, "Dropping optimistic write", "store", c.name, "id", tok.ID)
				continue
			}
			tok.AppliedValue = merged
			next = next.with(tok.ID, merged)
		}
		return next, true
	})
	return applied
}

// Create validates item, posts it and stores the result. An empty identity
// field is filled with a random uuid first.
func (c *Collection[T]) Create(ctx context.Context, item T) (T, error) {
	var zero T
	if se := c.check(item); se != nil {
		return zero, se
	}
	if c.key(item) == "" && !c.customKey {
		withID, err := mergePatch(item, withField(c.idField, uuid.NewString()))
		if err != nil {
			return zero, c.fail(CodeCreate, "create", err)
		}
		item = withID
	}

	created := item
	if c.remote() {
		c.begin()
		defer c.end()
		raw, err := c.transport.Send(ctx, http.MethodPost, c.endpoint, item)
		if err != nil {
			return zero, c.fail(CodeCreate, "create", err)
		}
		if v, ok, err := c.decodeEntity(raw); err != nil {
			return zero, c.fail(CodeCreate, "create", err)
		} else if ok {
			created = v
		}
	}

	c.Upsert(created)
	return created, nil
}

// Update merges patch into the entity stored under id, validates the result
// and puts it to the backend.
func (c *Collection[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	var zero T
	cur, ok := c.Get(id)
	if !ok {
		return zero, c.fail(CodeUpdate, "update", NewError(CodeNotFound, fmt.Sprintf("item with id %s not found", id)))
	}
	merged, err := mergePatch(cur, patch)
	if err != nil {
		return zero, c.fail(CodeUpdate, "update", err)
	}
	if se := c.check(merged); se != nil {
		return zero, se
	}

	updated := merged
	if c.remote() {
		c.begin()
		defer c.end()
		raw, err := c.transport.Send(ctx, http.MethodPut, c.itemPath(id), merged)
		if err != nil {
			return zero, c.fail(CodeUpdate, "update", err)
		}
		if v, ok, err := c.decodeEntity(raw); err != nil {
			return zero, c.fail(CodeUpdate, "update", err)
		} else if ok {
			updated = v
		}
	}

	c.set(id, updated)
	c.emit(Event[T]{Type: EventUpdated, Items: []T{updated}, IDs: []string{id}})
	return updated, nil
}

// Delete removes id from the backend and then locally.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if c.remote() {
		c.begin()
		defer c.end()
		if _, err := c.transport.Send(ctx, http.MethodDelete, c.itemPath(id), nil); err != nil {
			return c.fail(CodeDelete, "delete", err)
		}
	}
	c.Remove(id)
	return nil
}

// decodeEntity reads a single entity from a mutation response. An empty body,
// or one without an identity, yields ok=false.
func (c *Collection[T]) decodeEntity(raw json.RawMessage) (T, bool, error) {
	var zero T
	if len(bytes.TrimSpace(raw)) == 0 {
		return zero, false, nil
	}
	payload, err := api.Unwrap(raw)
	if err != nil {
		return zero, false, err
	}
	if len(payload) == 0 || payload[0] != '{' {
		return zero, false, nil
	}
	v, err := c.transform(payload)
	if err != nil {
		return zero, false, fmt.Errorf("decode entity: %w", err)
	}
	if c.key(v) == "" {
		return zero, false, nil
	}
	return v, true, nil
}

// Upsert stores item locally without a request.
func (c *Collection[T]) Upsert(item T) {
	id := c.key(item)
	if id == "" {
		return
	}
	existed := c.Exists(id)
	c.set(id, item)
	t := EventCreated
	if existed {
		t = EventUpdated
	}
	c.emit(Event[T]{Type: t, Items: []T{item}, IDs: []string{id}})
}

// Patch merges patch into the entity stored under id without a request.
func (c *Collection[T]) Patch(id string, patch map[string]any) (T, error) {
	var (
		out    T
		mErr   error
		exists bool
	)
	c.items.UpdateIf(func(cur Entries[T]) (Entries[T], bool) {
		prev, ok := cur.Get(id)
		if !ok {
			return cur, false
		}
		exists = true
		out, mErr = mergePatch(prev, patch)
		if mErr != nil {
			return cur, false
		}
		return cur.with(id, out), true
	})
	if !exists {
		var zero T
		return zero, NewError(CodeNotFound, fmt.Sprintf("item with id %s not found", id))
	}
	if mErr != nil {
		var zero T
		return zero, mErr
	}
	c.emit(Event[T]{Type: EventUpdated, Items: []T{out}, IDs: []string{id}})
	return out, nil
}

// Remove drops id locally without a request.
func (c *Collection[T]) Remove(id string) {
	_, removed := c.items.UpdateIf(func(cur Entries[T]) (Entries[T], bool) {
		if !cur.Has(id) {
			return cur, false
		}
		return cur.without(id), true
	})
	if removed {
		c.emit(Event[T]{Type: EventDeleted, IDs: []string{id}})
	}
}

// Replace swaps every entity for items without a request.
func (c *Collection[T]) Replace(items []T) {
	c.items.Set(newEntries(items, c.key))
}

func (c *Collection[T]) set(id string, v T) {
	c.items.Update(func(cur Entries[T]) Entries[T] { return cur.with(id, v) })
}

// Clear empties the entities and resets error, filters, sort and pagination.
// Pending optimistic writes are forgotten.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	for tok := range c.pending {
		tok.done = true
	}
	c.pending = make(map[*OptimisticUpdate[T]]struct{})
	c.lastQuery = nil
	c.mu.Unlock()

	c.items.Set(Entries[T]{})
	c.err.Set(nil)
	c.filters.Set(nil)
	c.sort.Set(nil)
	c.pagination.Set(nil)
}

// Destroy detaches persistence, handlers and derived values, then clears the
// collection. The persisted cache keeps its last contents.
func (c *Collection[T]) Destroy() {
	if c.persist != nil {
		c.persist()
		c.persist = nil
	}
	c.events.clear()
	c.Clear()
	c.snapshot.Close()
	c.empty.Close()
	c.count.Close()
	c.paginated.Close()
	c.sorted.Close()
	c.filtered.Close()
}

func mergePatch[T any](base T, patch map[string]any) (T, error) {
	var zero T
	orig, err := json.Marshal(base)
	if err != nil {
		return zero, fmt.Errorf("encode entity: %w", err)
	}
	p, err := json.Marshal(patch)
	if err != nil {
		return zero, fmt.Errorf("encode patch: %w", err)
	}
	merged, err := jsonpatch.MergePatch(orig, p)
	if err != nil {
		return zero, fmt.Errorf("merge patch: %w", err)
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, fmt.Errorf("decode entity: %w", err)
	}
	return out, nil
}
