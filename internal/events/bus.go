// Package events provides the process-local signals that tie the sync core
// together: every local mutation publishes DataChanged, and the token broker
// publishes AuthChanged on sign-in and sign-out.
package events

import "sync"

// Topic names a signal stream.
type Topic string

const (
	// DataChanged fires after any local data mutation.
	DataChanged Topic = "data:changed"
	// AuthChanged fires after sign-in or sign-out.
	AuthChanged Topic = "auth:changed"
)

// Handler is invoked synchronously for each published signal. Handlers must
// not block; long work belongs on the subscriber's own goroutine.
type Handler func()

// Bus is an in-process publish/subscribe hub. It is safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]Handler)}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Unsubscribing is idempotent.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish invokes every handler currently subscribed to the topic. Handlers
// registered during delivery do not receive the in-flight signal.
func (b *Bus) Publish(topic Topic) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}
