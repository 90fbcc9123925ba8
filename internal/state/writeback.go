package state

import "sync"

// WriteBack mirrors the latest value of an observable to an external sink.
// Trigger never blocks on the sink: a trigger that arrives while a write is
// running schedules one more write, which reads the value afresh. The last
// write therefore always carries the newest value, whatever order concurrent
// writers notified in.
type WriteBack[T any] struct {
	src   Readable[T]
	write func(T)

	mu      sync.Mutex
	running bool
	dirty   bool
}

// NewWriteBack returns a WriteBack that passes src's current value to write.
func NewWriteBack[T any](src Readable[T], write func(T)) *WriteBack[T] {
	return &WriteBack[T]{src: src, write: write}
}

// Attach subscribes w to its source. The returned func detaches it.
func (w *WriteBack[T]) Attach() func() {
	return w.src.Subscribe(func(T) { w.Trigger() })
}

// Trigger writes the source's current value, or folds into a running write.
func (w *WriteBack[T]) Trigger() {
	w.mu.Lock()
	if w.running {
		w.dirty = true
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	for {
		w.write(w.src.Get())

		w.mu.Lock()
		if !w.dirty {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.dirty = false
		w.mu.Unlock()
	}
}
