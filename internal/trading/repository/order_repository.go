package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// OrderFilter narrows List. Zero values mean "any".
type OrderFilter struct {
	UserID uint64
	Symbol models.Symbol
	Side   models.Side
	Status models.Status
	Limit  int
	Offset int
}

// OrderRepository persists orders. Rows are never deleted; amount only
// decreases and terminal statuses never change again.
type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository
	Create(ctx context.Context, order *models.Order) error
	Find(ctx context.Context, id uint64) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uint64) (*models.Order, error)
	MarkFilled(ctx context.Context, id uint64) error
	MarkCancelled(ctx context.Context, id uint64) error
	DecrementAmount(ctx context.Context, id uint64, by decimal.Decimal) error
	FindSellMatch(ctx context.Context, symbol models.Symbol, maxPrice decimal.Decimal) (*models.Order, error)
	FindBuyMatch(ctx context.Context, symbol models.Symbol, minPrice decimal.Decimal) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
}

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormOrderRepository creates a new GORM-based order repository
func NewGormOrderRepository(db *gorm.DB, logger *zap.Logger) *GormOrderRepository {
	return &GormOrderRepository{
		db:     db,
		logger: logger,
	}
}

func (r *GormOrderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: tx, logger: r.logger}
}

// Create inserts an order and assigns its ID.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		r.logger.Error("Failed to create order",
			zap.Error(err),
			zap.Uint64("user_id", order.UserID),
			zap.String("symbol", string(order.Symbol)),
			zap.String("side", string(order.Side)))
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug("Order created",
		zap.Uint64("order_id", order.ID),
		zap.String("symbol", string(order.Symbol)),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("amount", order.Amount.String()))
	return nil
}

// Find returns the order with id or ErrNotFound.
func (r *GormOrderRepository) Find(ctx context.Context, id uint64) (*models.Order, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindForUpdate reads the order with a row lock where the dialect supports one.
func (r *GormOrderRepository) FindForUpdate(ctx context.Context, id uint64) (*models.Order, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormOrderRepository) find(q *gorm.DB, id uint64) (*models.Order, error) {
	var order models.Order
	if err := q.First(&order, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", id, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// MarkFilled moves an OPEN order to FILLED.
func (r *GormOrderRepository) MarkFilled(ctx context.Context, id uint64) error {
	return r.transition(ctx, id, models.StatusFilled)
}

// MarkCancelled moves an OPEN order to CANCELLED.
func (r *GormOrderRepository) MarkCancelled(ctx context.Context, id uint64) error {
	return r.transition(ctx, id, models.StatusCancelled)
}

func (r *GormOrderRepository) transition(ctx context.Context, id uint64, to models.Status) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.StatusOpen).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("failed to update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %d to %s: %w", id, to, errors.ErrOrderNotOpen)
	}
	return nil
}

// DecrementAmount reduces the remaining amount of an OPEN order. The
// result must stay strictly positive.
func (r *GormOrderRepository) DecrementAmount(ctx context.Context, id uint64, by decimal.Decimal) error {
	if !by.IsPositive() {
		return fmt.Errorf("decrement must be positive: %w", errors.ErrInvalidOrder)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orders []models.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, models.StatusOpen).
			Limit(1).
			Find(&orders).Error
		if err != nil {
			return fmt.Errorf("failed to read order: %w", err)
		}
		if len(orders) == 0 || !orders[0].Amount.GreaterThan(by) {
			return fmt.Errorf("decrement order %d by %s: %w", id, by, errors.ErrOrderNotOpen)
		}

		err = tx.Model(&models.Order{}).Where("id = ?", id).
			Update("amount", orders[0].Amount.Sub(by)).Error
		if err != nil {
			return fmt.Errorf("failed to decrement order amount: %w", err)
		}
		return nil
	})
}

// FindSellMatch returns the earliest OPEN sell order of symbol priced at or
// below maxPrice, or nil when there is none.
func (r *GormOrderRepository) FindSellMatch(ctx context.Context, symbol models.Symbol, maxPrice decimal.Decimal) (*models.Order, error) {
	return r.findMatch(ctx, symbol, models.SideSell, "CAST(price AS NUMERIC) <= ?", maxPrice)
}

// FindBuyMatch returns the earliest OPEN buy order of symbol priced at or
// above minPrice, or nil when there is none.
func (r *GormOrderRepository) FindBuyMatch(ctx context.Context, symbol models.Symbol, minPrice decimal.Decimal) (*models.Order, error) {
	return r.findMatch(ctx, symbol, models.SideBuy, "CAST(price AS NUMERIC) >= ?", minPrice)
}

func (r *GormOrderRepository) findMatch(ctx context.Context, symbol models.Symbol, side models.Side, priceCond string, price decimal.Decimal) (*models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("symbol = ? AND side = ? AND status = ?", symbol, side, models.StatusOpen).
		Where(priceCond, price).
		Order("id ASC").
		Limit(1).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find %s match: %w", side, err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// List returns orders matching filter, newest first.
func (r *GormOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.Side != "" {
		q = q.Where("side = ?", filter.Side)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var orders []models.Order
	if err := q.Order("id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}
