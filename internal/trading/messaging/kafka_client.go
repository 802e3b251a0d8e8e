package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of kafka.Writer the client uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaClient publishes engine events to one Kafka topic.
type KafkaClient struct {
	brokers []string
	topic   string
	source  string
	writer  messageWriter
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// KafkaClientConfig contains configuration options for KafkaClient
type KafkaClientConfig struct {
	BatchSize       int
	BatchTimeout    time.Duration
	WriteTimeout    time.Duration
	RequiredAcks    int
	Compression     string
	MaxMessageBytes int
	RetryMax        int
}

// DefaultKafkaClientConfig returns a low-latency configuration
func DefaultKafkaClientConfig() *KafkaClientConfig {
	return &KafkaClientConfig{
		BatchSize:       100,
		BatchTimeout:    5 * time.Millisecond,
		WriteTimeout:    time.Second,
		RequiredAcks:    1,
		Compression:     "snappy",
		MaxMessageBytes: 1048576,
		RetryMax:        3,
	}
}

// NewKafkaClient creates a Kafka client writing to topic.
func NewKafkaClient(logger *zap.Logger, brokers []string, topic string, config *KafkaClientConfig) *KafkaClient {
	if config == nil {
		config = DefaultKafkaClientConfig()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.CRC32Balancer{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  config.RetryMax,
		BatchBytes:   int64(config.MaxMessageBytes),
		Compression:  compressionCodec(config.Compression),
	}

	return newKafkaClient(logger, brokers, topic, w)
}

func newKafkaClient(logger *zap.Logger, brokers []string, topic string, w messageWriter) *KafkaClient {
	return &KafkaClient{
		brokers: brokers,
		topic:   topic,
		source:  "pincex-spot",
		writer:  w,
		logger:  logger,
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}

// PublishEvent writes one message. Messages with the same key land on the
// same partition, so per-key ordering is preserved.
func (c *KafkaClient) PublishEvent(ctx context.Context, key string, data []byte, headers map[string]string) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("kafka client is closed")
	}
	writer := c.writer
	c.mu.RUnlock()

	now := time.Now().UTC()
	kafkaHeaders := []kafka.Header{
		{Key: "source", Value: []byte(c.source)},
		{Key: "timestamp", Value: []byte(now.Format(time.RFC3339Nano))},
	}
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: kafkaHeaders,
		Time:    now,
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to publish event to Kafka",
			zap.String("topic", c.topic),
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to publish event to kafka topic %s: %w", c.topic, err)
	}

	c.logger.Debug("Published event",
		zap.String("topic", c.topic),
		zap.String("key", key),
		zap.Int("data_size", len(data)))
	return nil
}

// Close closes the Kafka client and releases resources.
func (c *KafkaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.writer.Close(); err != nil {
		c.logger.Error("Error closing Kafka writer", zap.Error(err))
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

// Topic returns the topic this client publishes to
func (c *KafkaClient) Topic() string {
	return c.topic
}

// IsHealthy dials the first broker.
func (c *KafkaClient) IsHealthy(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return fmt.Errorf("kafka client is closed")
	}
	if len(c.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", c.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(c.topic); err != nil {
		return fmt.Errorf("failed to read partitions for topic %s: %w", c.topic, err)
	}
	return nil
}
