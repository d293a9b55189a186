package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Broadcaster publishes realtime events to all subscribers of a ticket's
// channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

// Stamp fills identity and timestamp fields when absent.
func Stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

// EventHandler handles a broadcast event.
type EventHandler func(context.Context, Event) error

// NewInMemoryBroadcaster creates a synchronous broadcaster used in tests
// and when no redis connection is configured.
func NewInMemoryBroadcaster() *InMemoryBroadcaster {
	return &InMemoryBroadcaster{
		listeners: make(map[EventType][]EventHandler),
	}
}

// InMemoryBroadcaster delivers events to in-process subscribers.
type InMemoryBroadcaster struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// Broadcast synchronously invokes handlers for the given event.
func (d *InMemoryBroadcaster) Broadcast(ctx context.Context, event Event) error {
	event = Stamp(event)
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		// A failing handler never blocks the rest.
		_ = handler(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *InMemoryBroadcaster) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
