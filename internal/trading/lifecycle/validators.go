package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// CreateOrderParams is the input of an order creation.
type CreateOrderParams struct {
	UserID uint64
	Symbol models.Symbol
	Side   models.Side
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OrderValidator checks creation parameters before any ledger mutation.
type OrderValidator interface {
	ValidateOrder(ctx context.Context, p CreateOrderParams) error
	Name() string
}

// BasicOrderValidator performs basic order validation
type BasicOrderValidator struct {
	symbols map[models.Symbol]bool
}

// NewBasicOrderValidator accepts orders for the given symbols only.
func NewBasicOrderValidator(symbols []models.Symbol) *BasicOrderValidator {
	set := make(map[models.Symbol]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return &BasicOrderValidator{symbols: set}
}

func (v *BasicOrderValidator) Name() string { return "basic" }

// ValidateOrder validates basic order requirements
func (v *BasicOrderValidator) ValidateOrder(_ context.Context, p CreateOrderParams) error {
	if p.UserID == 0 {
		return fmt.Errorf("user id is required: %w", errors.ErrInvalidOrder)
	}
	if !v.symbols[p.Symbol] {
		return fmt.Errorf("symbol %q is not traded: %w", p.Symbol, errors.ErrInvalidOrder)
	}
	if p.Side != models.SideBuy && p.Side != models.SideSell {
		return fmt.Errorf("invalid order side %q: %w", p.Side, errors.ErrInvalidOrder)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("order price must be positive: %w", errors.ErrInvalidOrder)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("order amount must be positive: %w", errors.ErrInvalidOrder)
	}
	return nil
}

// PrecisionValidator rejects values that the store would silently round.
type PrecisionValidator struct{}

func (PrecisionValidator) Name() string { return "precision" }

func (PrecisionValidator) ValidateOrder(_ context.Context, p CreateOrderParams) error {
	if !models.FitsScale(p.Price, models.PriceScale) {
		return fmt.Errorf("price has more than %d decimals: %w", models.PriceScale, errors.ErrInvalidOrder)
	}
	if !models.FitsScale(p.Amount, models.AmountScale) {
		return fmt.Errorf("amount has more than %d decimals: %w", models.AmountScale, errors.ErrInvalidOrder)
	}
	return nil
}
