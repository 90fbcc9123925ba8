package store

import (
	"encoding/json"

	"k8s.io/klog/v2"
)

func (c *Collection[T]) restore() (Entries[T], bool) {
	raw, ok := c.storage.Get(c.persistKey)
	if !ok || raw == "" {
		return Entries[T]{}, false
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		klog.ErrorS(err, "Ignoring unreadable cache", "store", c.name, "key", c.persistKey)
		return Entries[T]{}, false
	}
	return newEntries(items, c.key), true
}

func (c *Collection[T]) save(e Entries[T]) {
	encoded, err := json.Marshal(e.Values())
	if err != nil {
		klog.ErrorS(err, "Encode cache", "store", c.name)
		return
	}
	if err := c.storage.Set(c.persistKey, string(encoded)); err != nil {
		klog.ErrorS(err, "Write cache", "store", c.name, "key", c.persistKey)
	}
}
