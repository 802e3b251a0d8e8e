package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublishEventSetsKeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	c := newKafkaClient(zap.NewNop(), []string{"localhost:9092"}, "events", w)

	err := c.PublishEvent(context.Background(), "BTC", []byte(`{"x":1}`), map[string]string{"type": "TradeCreated"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "BTC", string(m.Key))
	assert.Equal(t, `{"x":1}`, string(m.Value))
	assert.Equal(t, "TradeCreated", header(m, "type"))
	assert.Equal(t, "pincex-spot", header(m, "source"))
	assert.NotEmpty(t, header(m, "timestamp"))
}

func TestPublishEventWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	c := newKafkaClient(zap.NewNop(), nil, "events", &fakeWriter{err: boom})

	err := c.PublishEvent(context.Background(), "k", nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestClosedClientRejectsPublish(t *testing.T) {
	w := &fakeWriter{}
	c := newKafkaClient(zap.NewNop(), nil, "events", w)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, w.closed)

	assert.Error(t, c.PublishEvent(context.Background(), "k", nil, nil))
	assert.Error(t, c.IsHealthy(context.Background()))
}

func TestCompressionCodec(t *testing.T) {
	assert.Equal(t, kafka.Gzip, compressionCodec("gzip"))
	assert.Equal(t, kafka.Zstd, compressionCodec("zstd"))
	assert.Equal(t, kafka.Snappy, compressionCodec("unknown"))
}
