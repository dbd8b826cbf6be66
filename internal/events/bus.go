package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives the raw payload of an event on a topic.
// Handlers run synchronously on the publisher's goroutine and must be cheap.
type Handler func(topic Topic, payload []byte)

// Bus is the in-process event bus. Producers inside a process publish here
// in addition to the broker, so subscribers in the same process (the alert
// callback feeding a publisher, a display sharing a reader process in mock
// mode) see events without a broker round-trip.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
	log      zerolog.Logger
}

// NewBus creates an empty in-process bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Topic][]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers a payload to every handler registered for the topic.
// A panicking handler is logged and does not affect the others.
func (b *Bus) Publish(topic Topic, payload []byte) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(topic, payload, h)
	}
}

func (b *Bus) dispatch(topic Topic, payload []byte, h Handler) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error().
				Str("topic", string(topic)).
				Str("panic", fmt.Sprint(p)).
				Msg("Event handler panicked")
		}
	}()
	h(topic, payload)
}
