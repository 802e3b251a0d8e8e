package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event is the envelope for everything published on the bus
type Event struct {
	Topic     string // e.g. "order", "trade", "balance", "user"
	Type      string // e.g. "OrderCreated", "TradeCreated"
	Timestamp time.Time
	Payload   interface{}
	Meta      map[string]interface{} // optional
}

// EventHandler handles one event. Handlers run on the publisher's
// goroutine, so they must be fast. A panicking handler is recovered and
// logged; it does not affect other handlers.
type EventHandler func(ctx context.Context, event Event)

// EventBus is the interface for publishing and subscribing to events
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(topic string, handler EventHandler)
}

// InMemoryEventBus delivers events synchronously, in subscription order
type InMemoryEventBus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	subs   map[string][]EventHandler

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

type EventBusMetrics struct {
	Published int64
	Delivered int64
	Failed    int64
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		logger: logger,
		subs:   make(map[string][]EventHandler),
	}
}

// Publish delivers an event to all subscribers of its topic and of
// TopicAll before returning.
func (bus *InMemoryEventBus) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	bus.published.Add(1)

	bus.mu.RLock()
	handlers := make([]EventHandler, 0, len(bus.subs[event.Topic])+len(bus.subs[TopicAll]))
	handlers = append(handlers, bus.subs[event.Topic]...)
	handlers = append(handlers, bus.subs[TopicAll]...)
	bus.mu.RUnlock()

	if len(handlers) == 0 {
		bus.logger.Debug("No subscribers for event", zap.String("topic", event.Topic), zap.String("type", event.Type))
		return
	}
	for _, h := range handlers {
		bus.deliver(ctx, h, event)
	}
}

func (bus *InMemoryEventBus) deliver(ctx context.Context, h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.failed.Add(1)
			bus.logger.Error("Event handler panic",
				zap.Any("recover", r),
				zap.String("topic", event.Topic),
				zap.String("type", event.Type))
		}
	}()
	h(ctx, event)
	bus.delivered.Add(1)
}

// Subscribe registers a handler for a topic. TopicAll receives every event.
func (bus *InMemoryEventBus) Subscribe(topic string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subs[topic] = append(bus.subs[topic], handler)
	bus.logger.Debug("Subscribed handler to topic", zap.String("topic", topic))
}

// Metrics returns current event bus metrics
func (bus *InMemoryEventBus) Metrics() EventBusMetrics {
	return EventBusMetrics{
		Published: bus.published.Load(),
		Delivered: bus.delivered.Load(),
		Failed:    bus.failed.Load(),
	}
}
