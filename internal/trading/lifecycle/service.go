package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/internal/bookkeeper"
	"github.com/Aidin1998/pincex_spot/internal/trading/coordination"
	"github.com/Aidin1998/pincex_spot/internal/trading/events"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/pkg/metrics"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// Balance change reasons carried by UserBalanceChanged events.
const (
	ReasonOrderCreated   = "order_created"
	ReasonOrderCancelled = "order_cancelled"
)

// Service owns order creation, cancellation and fills. Creation and
// cancellation run in their own transaction and publish events after
// commit; fills join the caller's transaction.
type Service struct {
	db         *gorm.DB
	logger     *zap.Logger
	ledger     bookkeeper.Ledger
	orders     repository.OrderRepository
	bus        events.EventBus
	locks      *coordination.SymbolLocks
	validators []OrderValidator
}

// NewService creates a new lifecycle service
func NewService(
	db *gorm.DB,
	logger *zap.Logger,
	ledger bookkeeper.Ledger,
	orders repository.OrderRepository,
	bus events.EventBus,
	locks *coordination.SymbolLocks,
	validators ...OrderValidator,
) *Service {
	return &Service{
		db:         db,
		logger:     logger,
		ledger:     ledger,
		orders:     orders,
		bus:        bus,
		locks:      locks,
		validators: validators,
	}
}

func (s *Service) validate(ctx context.Context, p CreateOrderParams) error {
	for _, v := range s.validators {
		if err := v.ValidateOrder(ctx, p); err != nil {
			metrics.OrdersRejected.WithLabelValues("validation").Inc()
			s.logger.Debug("Order rejected", zap.String("validator", v.Name()), zap.Error(err))
			return err
		}
	}
	return nil
}

// Create dispatches on the order side.
func (s *Service) Create(ctx context.Context, p CreateOrderParams) (*models.Order, error) {
	switch p.Side {
	case models.SideBuy:
		return s.CreateBuyOrder(ctx, p)
	case models.SideSell:
		return s.CreateSellOrder(ctx, p)
	default:
		return nil, fmt.Errorf("invalid order side %q: %w", p.Side, errors.ErrInvalidOrder)
	}
}

// CreateBuyOrder debits price*amount from the buyer and records an OPEN
// BUY order in one transaction.
func (s *Service) CreateBuyOrder(ctx context.Context, p CreateOrderParams) (*models.Order, error) {
	p.Side = models.SideBuy
	if err := s.validate(ctx, p); err != nil {
		return nil, err
	}

	order := newOpenOrder(p)
	cost := order.Cost()
	var buf events.Buffer

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		if err := ledger.Debit(ctx, p.UserID, cost); err != nil {
			return err
		}
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.bufferBalance(ctx, ledger, &buf, p.UserID, ReasonOrderCreated)
	})
	if err != nil {
		s.reject(err)
		return nil, fmt.Errorf("failed to create buy order: %w", err)
	}

	s.accepted(ctx, order, &buf)
	return order, nil
}

// CreateSellOrder locks amount of the seller's free asset and records an
// OPEN SELL order in one transaction.
func (s *Service) CreateSellOrder(ctx context.Context, p CreateOrderParams) (*models.Order, error) {
	p.Side = models.SideSell
	if err := s.validate(ctx, p); err != nil {
		return nil, err
	}

	order := newOpenOrder(p)
	var buf events.Buffer

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.WithTx(tx).Lock(ctx, p.UserID, p.Symbol, p.Amount); err != nil {
			return err
		}
		return s.orders.WithTx(tx).Create(ctx, order)
	})
	if err != nil {
		s.reject(err)
		return nil, fmt.Errorf("failed to create sell order: %w", err)
	}

	s.accepted(ctx, order, &buf)
	return order, nil
}

func newOpenOrder(p CreateOrderParams) *models.Order {
	return &models.Order{
		UserID: p.UserID,
		Symbol: p.Symbol,
		Side:   p.Side,
		Status: models.StatusOpen,
		Price:  p.Price,
		Amount: p.Amount,
	}
}

func (s *Service) reject(err error) {
	switch {
	case errors.Is(err, errors.ErrInsufficientBalance):
		metrics.OrdersRejected.WithLabelValues("insufficient_balance").Inc()
	case errors.Is(err, errors.ErrInsufficientAsset):
		metrics.OrdersRejected.WithLabelValues("insufficient_asset").Inc()
	default:
		s.logger.Error("Order creation failed", zap.Error(err))
	}
}

func (s *Service) accepted(ctx context.Context, order *models.Order, buf *events.Buffer) {
	metrics.OrdersCreated.WithLabelValues(string(order.Symbol), string(order.Side)).Inc()
	s.logger.Info("Order created",
		zap.Uint64("order_id", order.ID),
		zap.Uint64("user_id", order.UserID),
		zap.String("symbol", string(order.Symbol)),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("amount", order.Amount.String()))

	buf.Flush(ctx, s.bus)
	s.bus.Publish(ctx, events.OrderCreated(*order))
}

// Cancel loads the order, checks that userID owns it and dispatches on side.
func (s *Service) Cancel(ctx context.Context, userID, orderID uint64) (*models.Order, error) {
	order, err := s.orders.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d does not belong to user %d: %w", orderID, userID, errors.ErrForbidden)
	}
	if order.Side == models.SideBuy {
		return s.CancelBuyOrder(ctx, orderID)
	}
	return s.CancelSellOrder(ctx, orderID)
}

// CancelBuyOrder refunds price*remaining to the buyer and marks the order
// CANCELLED.
func (s *Service) CancelBuyOrder(ctx context.Context, orderID uint64) (*models.Order, error) {
	return s.cancel(ctx, orderID, models.SideBuy, func(ctx context.Context, ledger bookkeeper.Ledger, order *models.Order, buf *events.Buffer) error {
		if err := ledger.Credit(ctx, order.UserID, order.Cost()); err != nil {
			return err
		}
		return s.bufferBalance(ctx, ledger, buf, order.UserID, ReasonOrderCancelled)
	})
}

// CancelSellOrder moves the remaining locked amount back to free and marks
// the order CANCELLED.
func (s *Service) CancelSellOrder(ctx context.Context, orderID uint64) (*models.Order, error) {
	return s.cancel(ctx, orderID, models.SideSell, func(ctx context.Context, ledger bookkeeper.Ledger, order *models.Order, _ *events.Buffer) error {
		return ledger.Unlock(ctx, order.UserID, order.Symbol, order.Amount)
	})
}

type refundFunc func(ctx context.Context, ledger bookkeeper.Ledger, order *models.Order, buf *events.Buffer) error

// cancel holds the symbol lock so a cancellation never interleaves with a
// matching loop. The order is re-read inside the transaction; whichever of
// fill and cancel commits first wins.
func (s *Service) cancel(ctx context.Context, orderID uint64, side models.Side, refund refundFunc) (*models.Order, error) {
	current, err := s.orders.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Side != side {
		return nil, fmt.Errorf("order %d is a %s order: %w", orderID, current.Side, errors.ErrInvalidOrder)
	}

	release, err := s.locks.Acquire(ctx, current.Symbol)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		order *models.Order
		buf   events.Buffer
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		o, err := orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.IsOpen() {
			return fmt.Errorf("order %d is %s: %w", orderID, o.Status, errors.ErrOrderNotOpen)
		}
		if err := orders.MarkCancelled(ctx, orderID); err != nil {
			return err
		}
		if err := refund(ctx, s.ledger.WithTx(tx), o, &buf); err != nil {
			return err
		}
		o.Status = models.StatusCancelled
		order = o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}

	metrics.OrdersCancelled.WithLabelValues(string(order.Symbol), string(order.Side)).Inc()
	s.logger.Info("Order cancelled",
		zap.Uint64("order_id", order.ID),
		zap.Uint64("user_id", order.UserID),
		zap.String("remaining", order.Amount.String()))

	s.bus.Publish(ctx, events.OrderCancelled(*order))
	buf.Flush(ctx, s.bus)
	return order, nil
}

func (s *Service) bufferBalance(ctx context.Context, ledger bookkeeper.Ledger, buf *events.Buffer, userID uint64, reason string) error {
	balance, err := ledger.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	buf.Add(events.UserBalanceChanged(userID, balance, reason))
	return nil
}
