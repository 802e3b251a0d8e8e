package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// Topics
const (
	TopicAll     = "*"
	TopicOrder   = "order"
	TopicTrade   = "trade"
	TopicBalance = "balance"
	TopicUser    = "user"
)

// Event types
const (
	TypeOrderCreated       = "OrderCreated"
	TypeOrderMatched       = "OrderMatched"
	TypeOrderCancelled     = "OrderCancelled"
	TypeTradeCreated       = "TradeCreated"
	TypeUserBalanceChanged = "UserBalanceChanged"
	TypeUserCreated        = "UserCreated"
)

// OrderEvent carries a snapshot of one order.
type OrderEvent struct {
	Order models.Order `json:"order"`
}

// OrderMatchedEvent carries the two filled orders of one match.
type OrderMatchedEvent struct {
	SellOrder models.Order `json:"sell_order"`
	BuyOrder  models.Order `json:"buy_order"`
}

type TradeEvent struct {
	Trade models.Trade `json:"trade"`
}

// BalanceEvent reports a user's balance after a change.
type BalanceEvent struct {
	UserID  uint64          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason"`
}

type UserEvent struct {
	User models.User `json:"user"`
}

func newEvent(topic, typ string, payload interface{}) Event {
	return Event{Topic: topic, Type: typ, Timestamp: time.Now().UTC(), Payload: payload}
}

func OrderCreated(order models.Order) Event {
	return newEvent(TopicOrder, TypeOrderCreated, OrderEvent{Order: order})
}

func OrderCancelled(order models.Order) Event {
	return newEvent(TopicOrder, TypeOrderCancelled, OrderEvent{Order: order})
}

func OrderMatched(sell, buy models.Order) Event {
	return newEvent(TopicOrder, TypeOrderMatched, OrderMatchedEvent{SellOrder: sell, BuyOrder: buy})
}

func TradeCreated(trade models.Trade) Event {
	return newEvent(TopicTrade, TypeTradeCreated, TradeEvent{Trade: trade})
}

func UserBalanceChanged(userID uint64, balance decimal.Decimal, reason string) Event {
	return newEvent(TopicBalance, TypeUserBalanceChanged, BalanceEvent{UserID: userID, Balance: balance, Reason: reason})
}

func UserCreated(user models.User) Event {
	return newEvent(TopicUser, TypeUserCreated, UserEvent{User: user})
}

// Buffer collects events produced inside a transaction so they can be
// published once it commits. It is not safe for concurrent use.
type Buffer struct {
	events []Event
}

func (b *Buffer) Add(e Event) { b.events = append(b.events, e) }

func (b *Buffer) Events() []Event { return b.events }

// Flush publishes the buffered events in order and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, bus EventBus) {
	for _, e := range b.events {
		bus.Publish(ctx, e)
	}
	b.events = nil
}
