package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is a callback invoked for each matching event
type Handler func(event *Event)

// Bus is a synchronous publish/subscribe dispatcher. Handlers run on the
// publisher's goroutine in subscription order, so a publish returns only
// after every observer has seen the event. Subscriptions are permanent.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers an event to all handlers subscribed to its type.
// The timestamp is filled in if the caller left it zero.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", event.Module).
		Int("handlers", len(handlers)).
		Msg("Publishing event")

	for _, handler := range handlers {
		handler(event)
	}
}

// Emit is a convenience wrapper building the Event from its parts
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	b.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	})
}
