package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/internal/trading/events"
)

// Invalidator drops cached profiles whenever an event reports a change to
// a user's balance or assets.
type Invalidator struct {
	cache  ProfileCache
	logger *zap.Logger
}

func NewInvalidator(cache ProfileCache, logger *zap.Logger) *Invalidator {
	return &Invalidator{cache: cache, logger: logger}
}

// Attach subscribes the invalidator to balance and order events.
func (i *Invalidator) Attach(bus events.EventBus) {
	bus.Subscribe(events.TopicBalance, i.Handle)
	bus.Subscribe(events.TopicOrder, i.Handle)
}

func (i *Invalidator) Handle(ctx context.Context, event events.Event) {
	users := affectedUsers(event)
	if len(users) == 0 {
		return
	}
	if err := i.cache.Invalidate(ctx, users...); err != nil {
		i.logger.Warn("Profile invalidation failed",
			zap.String("event", event.Type),
			zap.Uint64s("users", users),
			zap.Error(err))
	}
}

// affectedUsers lists the users whose balance or assets event changed.
func affectedUsers(event events.Event) []uint64 {
	switch p := event.Payload.(type) {
	case events.BalanceEvent:
		return []uint64{p.UserID}
	case events.OrderEvent:
		return []uint64{p.Order.UserID}
	case events.OrderMatchedEvent:
		if p.SellOrder.UserID == p.BuyOrder.UserID {
			return []uint64{p.SellOrder.UserID}
		}
		return []uint64{p.SellOrder.UserID, p.BuyOrder.UserID}
	}
	return nil
}
