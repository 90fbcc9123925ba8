// Package bus is the process-wide event bus that carries console events such
// as logout and drawer changes between services.
package bus

import "sync"

// Topic names an event.
type Topic string

const (
	AuthLogout     Topic = "auth:logout"
	DrawerOpen     Topic = "drawer:open"
	DrawerClose    Topic = "drawer:close"
	ModalOpen      Topic = "modal:open"
	ModalClose     Topic = "modal:close"
	LanguageChange Topic = "language:change"
)

type handler struct {
	id uint64
	fn func(any)
}

// Bus delivers published payloads synchronously to topic subscribers in
// subscription order. The zero value is ready to use.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Topic][]handler
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn for topic and returns its unsubscribe function.
func (b *Bus) Subscribe(topic Topic, fn func(payload any)) func() {
	b.mu.Lock()
	if b.handlers == nil {
		b.handlers = make(map[Topic][]handler)
	}
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], handler{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			hs := b.handlers[topic]
			for i, h := range hs {
				if h.id == id {
					b.handlers[topic] = append(hs[:i:i], hs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish calls every subscriber of topic with payload.
func (b *Bus) Publish(topic Topic, payload any) {
	if b == nil {
		return
	}
	b.mu.Lock()
	hs := append([]handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range hs {
		h.fn(payload)
	}
}

// Subscribers reports how many handlers listen on topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}
