package livedash

import (
	"slices"
	"sync"
)

// updateListener receives value changes coming from clients. raw is the
// client message as received.
type updateListener func(u ClientUpdate, raw Msg, fx *effects)

// updateBus fans client value changes out to every registration; each
// registration picks the updates addressed to it.
type updateBus struct {
	mu        sync.RWMutex
	next      uint64
	listeners []busEntry
}

type busEntry struct {
	id uint64
	fn updateListener
}

// subscribe adds fn and returns the function that removes it again.
func (b *updateBus) subscribe(fn updateListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.listeners = append(b.listeners, busEntry{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listeners = slices.DeleteFunc(b.listeners, func(e busEntry) bool { return e.id == id })
	}
}

// publish calls every listener in subscription order.
func (b *updateBus) publish(u ClientUpdate, raw Msg, fx *effects) {
	b.mu.RLock()
	listeners := slices.Clone(b.listeners)
	b.mu.RUnlock()
	for _, l := range listeners {
		l.fn(u, raw, fx)
	}
}
