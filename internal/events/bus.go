// Package events is the in-process publish/subscribe channel between the
// session orchestrator and its consumers.
package events

import (
	"log/slog"
	"sync"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Handler receives one event. It runs on the publisher's goroutine.
type Handler func(event types.Event)

type subscription struct {
	handler Handler
}

// Bus delivers each published event synchronously to the handlers
// registered for its kind at the moment of publishing.
type Bus struct {
	log      *slog.Logger
	mu       sync.RWMutex
	handlers map[types.EventKind][]*subscription
}

var _ interfaces.EventPublisher = (*Bus)(nil)

func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		log:      log,
		handlers: make(map[types.EventKind][]*subscription),
	}
}

// Subscribe registers h for kind. The returned func removes it and may be
// called any number of times.
func (b *Bus) Subscribe(kind types.EventKind, h Handler) (unsubscribe func()) {
	sub := &subscription{handler: h}

	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, sub) })
	}
}

func (b *Bus) remove(kind types.EventKind, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.handlers[kind]
	kept := make([]*subscription, 0, len(current))
	for _, s := range current {
		if s != sub {
			kept = append(kept, s)
		}
	}
	b.handlers[kind] = kept
}

// Publish calls every handler for event.Kind() in registration order. A
// panicking handler is logged and skipped.
func (b *Bus) Publish(event types.Event) {
	b.mu.RLock()
	snapshot := b.handlers[event.Kind()]
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.dispatch(event, sub.handler)
	}
}

func (b *Bus) dispatch(event types.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panicked", "kind", event.Kind(), "panic", r)
		}
	}()
	h(event)
}

// Subscribers returns the number of handlers registered for kind.
func (b *Bus) Subscribers(kind types.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}
