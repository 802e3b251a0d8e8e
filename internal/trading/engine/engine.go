package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/pincex_spot/internal/trading/coordination"
	"github.com/Aidin1998/pincex_spot/internal/trading/events"
	"github.com/Aidin1998/pincex_spot/internal/trading/lifecycle"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/internal/trading/settlement"
	"github.com/Aidin1998/pincex_spot/pkg/metrics"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

var tracer = otel.Tracer("pincex-engine")

// ReasonTrade tags balance changes caused by settlement.
const ReasonTrade = "trade"

// Report summarizes one matching loop.
type Report struct {
	Trades []models.Trade
	// Remaining is the incoming order after the loop, nil when it was
	// consumed by its last fill.
	Remaining *models.Order
}

// MatchingEngine matches each newly created order against the resting
// book. The book is the order store: every iteration issues a fresh query
// for the earliest eligible counter-order.
type MatchingEngine struct {
	db         *gorm.DB
	logger     *zap.Logger
	orders     repository.OrderRepository
	lifecycle  *lifecycle.Service
	settlement *settlement.Service
	bus        events.EventBus
	locks      *coordination.SymbolLocks
	inst       instruments
}

func NewMatchingEngine(
	db *gorm.DB,
	logger *zap.Logger,
	orders repository.OrderRepository,
	lifecycleSvc *lifecycle.Service,
	settlementSvc *settlement.Service,
	bus events.EventBus,
	locks *coordination.SymbolLocks,
) *MatchingEngine {
	return &MatchingEngine{
		db:         db,
		logger:     logger,
		orders:     orders,
		lifecycle:  lifecycleSvc,
		settlement: settlementSvc,
		bus:        bus,
		locks:      locks,
		inst:       newInstruments(logger),
	}
}

// OnOrderCreated is the inbound trigger. Orders that are no longer OPEN
// are ignored, which makes redelivery of the same trigger harmless.
func (e *MatchingEngine) OnOrderCreated(ctx context.Context, order *models.Order) (*Report, error) {
	if !order.IsOpen() {
		return &Report{}, nil
	}
	switch order.Side {
	case models.SideBuy:
		return e.FindBuyOrderMatch(ctx, order)
	case models.SideSell:
		return e.FindSellOrderMatch(ctx, order)
	default:
		return nil, fmt.Errorf("unknown order side %q", order.Side)
	}
}

// FindBuyOrderMatch sweeps OPEN sell orders priced at or below the buy
// price, earliest first, until the buy order is filled or no counter is left.
func (e *MatchingEngine) FindBuyOrderMatch(ctx context.Context, buy *models.Order) (*Report, error) {
	return e.run(ctx, buy, models.SideBuy, e.matchBuy)
}

// FindSellOrderMatch sweeps OPEN buy orders priced at or above the sell
// price, earliest first, until the sell order is filled or no counter is left.
func (e *MatchingEngine) FindSellOrderMatch(ctx context.Context, sell *models.Order) (*Report, error) {
	return e.run(ctx, sell, models.SideSell, e.matchSell)
}

// step is one match iteration on tx. It returns nil when there is nothing
// left to do for the incoming order.
type step func(ctx context.Context, tx *gorm.DB, incoming *models.Order) (*iteration, error)

type iteration struct {
	sell, buy *lifecycle.FillResult
	result    *settlement.Result
	remaining *models.Order
}

func (e *MatchingEngine) run(ctx context.Context, order *models.Order, side models.Side, next step) (*Report, error) {
	if order.Side != side {
		return nil, fmt.Errorf("order %d is not a %s order", order.ID, side)
	}
	symbol := order.Symbol

	ctx, span := tracer.Start(ctx, "engine.match")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.symbol", string(symbol)),
		attribute.String("order.side", string(side)),
		attribute.Int64("order.id", int64(order.ID)),
	)

	release, err := e.locks.Acquire(ctx, symbol)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.MatchLatency.WithLabelValues(string(symbol)).Observe(elapsed.Seconds())
		e.inst.recordMatch(ctx, symbol, elapsed)
	}()

	report := &Report{}
	incomingID := order.ID
	for {
		var (
			it  *iteration
			buf events.Buffer
		)
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := e.orders.WithTx(tx).FindForUpdate(ctx, incomingID)
			if err != nil {
				return err
			}
			report.Remaining = current
			if !current.IsOpen() {
				return nil
			}
			it, err = next(ctx, tx, current)
			if err != nil || it == nil {
				return err
			}
			buf.Add(events.OrderMatched(*it.sell.Filled, *it.buy.Filled))
			buf.Add(events.TradeCreated(*it.result.Trade))
			buf.Add(events.UserBalanceChanged(it.sell.Filled.UserID, it.result.SellerBalance, ReasonTrade))
			return nil
		})
		if err != nil {
			metrics.MatchErrors.WithLabelValues(string(symbol)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "matching aborted")
			e.logger.Error("Matching loop aborted",
				zap.Uint64("order_id", incomingID),
				zap.String("symbol", string(symbol)),
				zap.Int("trades", len(report.Trades)),
				zap.Error(err))
			return report, fmt.Errorf("matching order %d: %w", incomingID, err)
		}
		if it == nil {
			break
		}

		trade := *it.result.Trade
		report.Trades = append(report.Trades, trade)
		report.Remaining = it.remaining
		metrics.TradesExecuted.WithLabelValues(string(symbol)).Inc()
		e.inst.recordTrade(ctx, symbol)
		metrics.CommissionCollected.WithLabelValues(string(symbol)).Add(trade.Commission.InexactFloat64())
		e.logger.Info("Trade executed",
			zap.Uint64("trade_id", trade.ID),
			zap.Uint64("buy_order_id", trade.BuyOrderID),
			zap.Uint64("sell_order_id", trade.SellOrderID),
			zap.String("symbol", string(trade.Symbol)),
			zap.String("price", trade.Price.String()),
			zap.String("amount", trade.Amount.String()))
		buf.Flush(ctx, e.bus)

		if it.remaining == nil {
			break
		}
	}

	span.SetAttributes(attribute.Int("match.trades", len(report.Trades)))
	return report, nil
}

func (e *MatchingEngine) matchBuy(ctx context.Context, tx *gorm.DB, buy *models.Order) (*iteration, error) {
	counter, err := e.orders.WithTx(tx).FindSellMatch(ctx, buy.Symbol, buy.Price)
	if err != nil || counter == nil {
		return nil, err
	}
	sellFill, err := e.lifecycle.FillSellOrder(ctx, tx, counter.ID, buy.Amount)
	if err != nil {
		return nil, err
	}
	buyFill, err := e.lifecycle.FillBuyOrder(ctx, tx, buy.ID, counter.Amount)
	if err != nil {
		return nil, err
	}
	res, err := e.settlement.Create(ctx, tx, sellFill.Filled, buyFill.Filled)
	if err != nil {
		return nil, err
	}
	return &iteration{sell: &sellFill, buy: &buyFill, result: res, remaining: buyFill.Remainder}, nil
}

func (e *MatchingEngine) matchSell(ctx context.Context, tx *gorm.DB, sell *models.Order) (*iteration, error) {
	counter, err := e.orders.WithTx(tx).FindBuyMatch(ctx, sell.Symbol, sell.Price)
	if err != nil || counter == nil {
		return nil, err
	}
	buyFill, err := e.lifecycle.FillBuyOrder(ctx, tx, counter.ID, sell.Amount)
	if err != nil {
		return nil, err
	}
	sellFill, err := e.lifecycle.FillSellOrder(ctx, tx, sell.ID, counter.Amount)
	if err != nil {
		return nil, err
	}
	res, err := e.settlement.Create(ctx, tx, sellFill.Filled, buyFill.Filled)
	if err != nil {
		return nil, err
	}
	return &iteration{sell: &sellFill, buy: &buyFill, result: res, remaining: sellFill.Remainder}, nil
}
