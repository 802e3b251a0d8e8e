package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// TradeRepository persists executed trades. Trades are append-only.
type TradeRepository interface {
	WithTx(tx *gorm.DB) TradeRepository
	Create(ctx context.Context, trade *models.Trade) error
	ListForUser(ctx context.Context, userID uint64, symbol models.Symbol) ([]models.UserTrade, error)
}

// GormTradeRepository implements TradeRepository using GORM
type GormTradeRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormTradeRepository creates a new GORM-based trade repository
func NewGormTradeRepository(db *gorm.DB, logger *zap.Logger) *GormTradeRepository {
	return &GormTradeRepository{
		db:     db,
		logger: logger,
	}
}

func (r *GormTradeRepository) WithTx(tx *gorm.DB) TradeRepository {
	return &GormTradeRepository{db: tx, logger: r.logger}
}

// Create creates a new trade record in the database
func (r *GormTradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		r.logger.Error("Failed to create trade",
			zap.Error(err),
			zap.Uint64("buy_order_id", trade.BuyOrderID),
			zap.Uint64("sell_order_id", trade.SellOrderID),
			zap.String("symbol", string(trade.Symbol)))
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.logger.Debug("Trade created successfully",
		zap.Uint64("trade_id", trade.ID),
		zap.Uint64("buy_order_id", trade.BuyOrderID),
		zap.Uint64("sell_order_id", trade.SellOrderID),
		zap.String("symbol", string(trade.Symbol)),
		zap.String("price", trade.Price.String()),
		zap.String("amount", trade.Amount.String()))
	return nil
}

type userTradeRow struct {
	ID          uint64
	BuyOrderID  uint64
	SellOrderID uint64
	Symbol      models.Symbol
	Price       decimal.Decimal
	Amount      decimal.Decimal
	Commission  decimal.Decimal
	CreatedAt   time.Time
	Side        models.Side
}

// ListForUser returns the trades in which one of the user's orders took
// part, newest first. Side is the user's side; a self-trade appears once
// per side.
func (r *GormTradeRepository) ListForUser(ctx context.Context, userID uint64, symbol models.Symbol) ([]models.UserTrade, error) {
	q := r.db.WithContext(ctx).
		Table("trades").
		Select("trades.id, trades.buy_order_id, trades.sell_order_id, trades.symbol, trades.price, " +
			"trades.amount, trades.commission, trades.created_at, orders.side").
		Joins("JOIN orders ON orders.id = trades.buy_order_id OR orders.id = trades.sell_order_id").
		Where("orders.user_id = ?", userID)
	if symbol != "" {
		q = q.Where("trades.symbol = ?", symbol)
	}

	var rows []userTradeRow
	if err := q.Order("trades.id DESC").Order("orders.side ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	out := make([]models.UserTrade, 0, len(rows))
	for _, row := range rows {
		t := models.Trade{
			ID:          row.ID,
			BuyOrderID:  row.BuyOrderID,
			SellOrderID: row.SellOrderID,
			Symbol:      row.Symbol,
			Price:       row.Price,
			Amount:      row.Amount,
			Commission:  row.Commission,
			CreatedAt:   row.CreatedAt,
		}
		out = append(out, models.UserTrade{
			Trade: t,
			Side:  row.Side,
			Sales: Sales(t),
		})
	}
	return out, nil
}

// Sales is the displayed gross of a trade: price*amount + commission,
// rounded to the price scale.
func Sales(t models.Trade) decimal.Decimal {
	return t.Price.Mul(t.Amount).Add(t.Commission).Round(models.PriceScale)
}
