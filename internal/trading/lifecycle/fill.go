package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// FillResult is the outcome of filling an order against a counter amount.
// Filled is the FILLED record to settle with: the order itself when it was
// consumed entirely, otherwise a new FILLED fragment. Remainder is the
// original order, still OPEN with its reduced amount, or nil.
type FillResult struct {
	Filled    *models.Order
	Remainder *models.Order
}

// FillBuyOrder fills a BUY order by counterAmount inside tx.
func (s *Service) FillBuyOrder(ctx context.Context, tx *gorm.DB, orderID uint64, counterAmount decimal.Decimal) (FillResult, error) {
	return s.fill(ctx, tx, orderID, models.SideBuy, counterAmount)
}

// FillSellOrder fills a SELL order by counterAmount inside tx.
func (s *Service) FillSellOrder(ctx context.Context, tx *gorm.DB, orderID uint64, counterAmount decimal.Decimal) (FillResult, error) {
	return s.fill(ctx, tx, orderID, models.SideSell, counterAmount)
}

// fill either marks the order FILLED in place (remaining <= counterAmount)
// or splits it: a new FILLED order of counterAmount is created and the
// original keeps the rest, still OPEN.
func (s *Service) fill(ctx context.Context, tx *gorm.DB, orderID uint64, side models.Side, counterAmount decimal.Decimal) (FillResult, error) {
	if !counterAmount.IsPositive() {
		return FillResult{}, fmt.Errorf("fill amount must be positive: %w", errors.ErrInvalidOrder)
	}
	orders := s.orders.WithTx(tx)

	order, err := orders.FindForUpdate(ctx, orderID)
	if err != nil {
		return FillResult{}, err
	}
	if order.Side != side {
		return FillResult{}, fmt.Errorf("order %d is a %s order: %w", orderID, order.Side, errors.ErrInvalidOrder)
	}
	if !order.IsOpen() {
		return FillResult{}, fmt.Errorf("fill order %d: %w", orderID, errors.ErrOrderNotOpen)
	}

	if order.Amount.LessThanOrEqual(counterAmount) {
		if err := orders.MarkFilled(ctx, orderID); err != nil {
			return FillResult{}, err
		}
		order.Status = models.StatusFilled
		return FillResult{Filled: order}, nil
	}

	fragment := &models.Order{
		UserID: order.UserID,
		Symbol: order.Symbol,
		Side:   order.Side,
		Status: models.StatusFilled,
		Price:  order.Price,
		Amount: counterAmount,
	}
	if err := orders.Create(ctx, fragment); err != nil {
		return FillResult{}, err
	}
	if err := orders.DecrementAmount(ctx, orderID, counterAmount); err != nil {
		return FillResult{}, err
	}
	order.Amount = order.Amount.Sub(counterAmount)

	s.logger.Debug("Order partially filled",
		zap.Uint64("order_id", orderID),
		zap.Uint64("fragment_id", fragment.ID),
		zap.String("filled", counterAmount.String()),
		zap.String("remaining", order.Amount.String()))

	return FillResult{Filled: fragment, Remainder: order}, nil
}
