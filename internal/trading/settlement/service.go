package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/pincex_spot/internal/bookkeeper"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// DefaultCommissionRate is charged to the seller on every trade.
var DefaultCommissionRate = decimal.RequireFromString("0.015")

// Economics is the money side of one trade, always priced from the buy order.
type Economics struct {
	SalesTotal decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}

// Result is what a settled match produced.
type Result struct {
	Trade         *models.Trade
	SellerBalance decimal.Decimal
}

// Service moves funds and assets for a matched pair of filled orders and
// records the trade.
type Service struct {
	logger *zap.Logger
	ledger bookkeeper.Ledger
	trades repository.TradeRepository
	rate   decimal.Decimal
}

func NewService(logger *zap.Logger, ledger bookkeeper.Ledger, trades repository.TradeRepository, commissionRate decimal.Decimal) *Service {
	return &Service{
		logger: logger,
		ledger: ledger,
		trades: trades,
		rate:   commissionRate,
	}
}

// Economics computes sales total, commission and seller proceeds for a
// trade executed at the buy order's price and amount.
func (s *Service) Economics(buy *models.Order) Economics {
	total := buy.Amount.Mul(buy.Price)
	commission := total.Mul(s.rate).Round(models.AmountScale)
	return Economics{
		SalesTotal: total,
		Commission: commission,
		Net:        total.Sub(commission),
	}
}

// Create settles sell against buy inside tx: the seller is credited the
// net proceeds and loses buy.Amount of locked asset, the buyer receives
// buy.Amount of free asset, and a Trade row is written.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, sell, buy *models.Order) (*Result, error) {
	if sell.Symbol != buy.Symbol {
		return nil, fmt.Errorf("cannot settle %s against %s", sell.Symbol, buy.Symbol)
	}
	eco := s.Economics(buy)
	ledger := s.ledger.WithTx(tx)

	if err := ledger.Credit(ctx, sell.UserID, eco.Net); err != nil {
		return nil, fmt.Errorf("failed to credit seller: %w", err)
	}
	if err := ledger.Sold(ctx, sell.UserID, sell.Symbol, buy.Amount); err != nil {
		return nil, fmt.Errorf("failed to deduct seller asset: %w", err)
	}
	if err := ledger.Bought(ctx, buy.UserID, buy.Symbol, buy.Amount); err != nil {
		return nil, fmt.Errorf("failed to credit buyer asset: %w", err)
	}

	trade := &models.Trade{
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Symbol:      buy.Symbol,
		Price:       buy.Price,
		Amount:      buy.Amount,
		Commission:  eco.Commission,
	}
	if err := s.trades.WithTx(tx).Create(ctx, trade); err != nil {
		return nil, err
	}

	balance, err := ledger.GetBalance(ctx, sell.UserID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Trade settled",
		zap.Uint64("trade_id", trade.ID),
		zap.String("symbol", string(trade.Symbol)),
		zap.String("sales_total", eco.SalesTotal.String()),
		zap.String("commission", eco.Commission.String()))

	return &Result{Trade: trade, SellerBalance: balance}, nil
}
