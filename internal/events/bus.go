package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// HandlerFunc processes the raw JSON payload of one event delivered on a
// topic. Returning an error tells the bus the delivery failed; at-least-once
// buses will redeliver, so handlers must be idempotent.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Publisher publishes events to a topic. Implementations serialize the
// event to JSON; the payload is immutable once published.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Subscriber registers a handler for a topic. The delivery model is
// at-least-once: duplicate deliveries are expected and are suppressed
// downstream via idempotency keys, never at the transport.
type Subscriber interface {
	Subscribe(topic string, handler HandlerFunc)
}

// Bus combines publishing and subscribing. Production deployments back this
// with a real broker; the in-memory implementation below serves local wiring
// and tests.
type Bus interface {
	Publisher
	Subscriber
}

// InMemoryBus is a synchronous, in-process Bus. Handlers run on the
// publisher's goroutine; every handler receives the event even if an
// earlier one fails, and the first error is returned.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	logger   *slog.Logger
}

// NewInMemoryBus creates an empty in-memory bus.
func NewInMemoryBus(logger *slog.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]HandlerFunc),
		logger:   logger.With("component", "in_memory_bus"),
	}
}

// Subscribe registers a handler for the given topic.
func (b *InMemoryBus) Subscribe(topic string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.logger.Debug("registered handler", "topic", topic, "handler_count", len(b.handlers[topic]))
}

// Publish serializes the event and delivers it to every handler subscribed
// to the topic.
func (b *InMemoryBus) Publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for topic %q: %w", topic, err)
	}

	b.mu.RLock()
	handlers := make([]HandlerFunc, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	b.logger.Debug("publishing event", "topic", topic, "handler_count", len(handlers))

	if len(handlers) == 0 {
		b.logger.Warn("no handlers subscribed to topic", "topic", topic)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler(ctx, payload); err != nil {
			b.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"topic", topic)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

var _ Bus = (*InMemoryBus)(nil)
