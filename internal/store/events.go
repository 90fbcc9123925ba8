package store

import (
	"sync"
	"time"
)

// EventType names a collection lifecycle event.
type EventType string

const (
	EventCreated      EventType = "created"
	EventUpdated      EventType = "updated"
	EventDeleted      EventType = "deleted"
	EventBatchUpdated EventType = "batch_updated"
	EventError        EventType = "error"
	EventLoadingStart EventType = "loading_start"
	EventLoadingEnd   EventType = "loading_end"
	EventFetched      EventType = "fetched"
)

// Event is delivered to handlers registered with On.
type Event[T any] struct {
	Type      EventType
	Source    string
	Items     []T
	IDs       []string
	Err       *StoreError
	Timestamp time.Time
}

type handler[T any] struct {
	id uint64
	fn func(Event[T])
}

type events[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[EventType][]handler[T]
}

func (e *events[T]) on(t EventType, fn func(Event[T])) func() {
	e.mu.Lock()
	if e.handlers == nil {
		e.handlers = make(map[EventType][]handler[T])
	}
	e.nextID++
	id := e.nextID
	e.handlers[t] = append(e.handlers[t], handler[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			hs := e.handlers[t]
			for i, h := range hs {
				if h.id == id {
					e.handlers[t] = append(hs[:i:i], hs[i+1:]...)
					return
				}
			}
		})
	}
}

func (e *events[T]) emit(ev Event[T]) {
	e.mu.Lock()
	hs := append([]handler[T](nil), e.handlers[ev.Type]...)
	e.mu.Unlock()

	for _, h := range hs {
		h.fn(ev)
	}
}

func (e *events[T]) clear() {
	e.mu.Lock()
	e.handlers = nil
	e.mu.Unlock()
}
