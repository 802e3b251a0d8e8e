package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Publisher is the outbound transport the Kafka sink writes to.
// messaging.KafkaClient satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, data []byte, headers map[string]string) error
}

// KafkaSink mirrors every bus event to Kafka. Publishing failures are
// logged and never reach the producer of the event.
type KafkaSink struct {
	logger    *zap.Logger
	publisher Publisher
	timeout   time.Duration
}

type wireEvent struct {
	Topic     string      `json:"topic"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func NewKafkaSink(logger *zap.Logger, publisher Publisher) *KafkaSink {
	return &KafkaSink{logger: logger, publisher: publisher, timeout: 2 * time.Second}
}

// Attach subscribes the sink to every topic of bus.
func (s *KafkaSink) Attach(bus EventBus) {
	bus.Subscribe(TopicAll, s.Handle)
}

// Handle serializes and publishes one event.
func (s *KafkaSink) Handle(ctx context.Context, event Event) {
	data, err := json.Marshal(wireEvent{
		Topic:     event.Topic,
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	})
	if err != nil {
		s.logger.Error("Failed to encode event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	headers := map[string]string{"topic": event.Topic, "type": event.Type}
	if err := s.publisher.PublishEvent(ctx, PartitionKey(event), data, headers); err != nil {
		s.logger.Warn("Failed to export event", zap.String("type", event.Type), zap.Error(err))
	}
}

// PartitionKey keys market events by symbol and account events by user.
func PartitionKey(event Event) string {
	switch p := event.Payload.(type) {
	case OrderEvent:
		return string(p.Order.Symbol)
	case OrderMatchedEvent:
		return string(p.BuyOrder.Symbol)
	case TradeEvent:
		return string(p.Trade.Symbol)
	case BalanceEvent:
		return fmt.Sprintf("user-%d", p.UserID)
	case UserEvent:
		return fmt.Sprintf("user-%d", p.User.ID)
	default:
		return event.Topic
	}
}
