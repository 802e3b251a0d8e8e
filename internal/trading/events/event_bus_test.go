package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

func TestPublishIsSynchronousAndOrdered(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	var got []string
	bus.Subscribe(TopicOrder, func(_ context.Context, e Event) { got = append(got, "order:"+e.Type) })
	bus.Subscribe(TopicAll, func(_ context.Context, e Event) { got = append(got, "all:"+e.Type) })

	order := models.Order{ID: 1, Symbol: models.SymbolBTC}
	bus.Publish(context.Background(), OrderCreated(order))
	bus.Publish(context.Background(), TradeCreated(models.Trade{ID: 2}))

	assert.Equal(t, []string{"order:OrderCreated", "all:OrderCreated", "all:TradeCreated"}, got)
	m := bus.Metrics()
	assert.Equal(t, int64(2), m.Published)
	assert.Equal(t, int64(3), m.Delivered)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	called := false
	bus.Subscribe(TopicTrade, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(TopicTrade, func(context.Context, Event) { called = true })

	bus.Publish(context.Background(), TradeCreated(models.Trade{}))
	assert.True(t, called)
	assert.Equal(t, int64(1), bus.Metrics().Failed)
}

func TestBufferFlush(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	var types []string
	bus.Subscribe(TopicAll, func(_ context.Context, e Event) { types = append(types, e.Type) })

	var buf Buffer
	buf.Add(OrderMatched(models.Order{ID: 1}, models.Order{ID: 2}))
	buf.Add(UserBalanceChanged(7, decimal.NewFromInt(3), "trade"))
	assert.Empty(t, types)

	buf.Flush(context.Background(), bus)
	assert.Equal(t, []string{TypeOrderMatched, TypeUserBalanceChanged}, types)
	assert.Empty(t, buf.Events())
}

type recordingPublisher struct {
	mu      sync.Mutex
	keys    []string
	bodies  [][]byte
	headers []map[string]string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, key string, data []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, data)
	p.headers = append(p.headers, headers)
	return nil
}

func TestKafkaSinkExportsEveryTopic(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	pub := &recordingPublisher{}
	NewKafkaSink(zap.NewNop(), pub).Attach(bus)

	bus.Publish(context.Background(), TradeCreated(models.Trade{ID: 9, Symbol: models.SymbolETH}))
	bus.Publish(context.Background(), UserBalanceChanged(4, decimal.NewFromInt(1), "cancel"))

	require.Len(t, pub.keys, 2)
	assert.Equal(t, "ETH", pub.keys[0])
	assert.Equal(t, "user-4", pub.keys[1])
	assert.Equal(t, TypeTradeCreated, pub.headers[0]["type"])

	var decoded struct {
		Type    string `json:"type"`
		Payload struct {
			Trade struct {
				ID uint64 `json:"id"`
			} `json:"trade"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(pub.bodies[0], &decoded))
	assert.Equal(t, TypeTradeCreated, decoded.Type)
	assert.Equal(t, uint64(9), decoded.Payload.Trade.ID)
}
