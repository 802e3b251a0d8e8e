package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal scales used by the stores. Prices are quoted with 4 places and
// quantities with 8. Balances hold price times quantity, so they carry both.
const (
	PriceScale   int32 = 4
	AmountScale  int32 = 8
	BalanceScale int32 = PriceScale + AmountScale
)

// FitsScale reports whether d has at most scale decimal places.
func FitsScale(d decimal.Decimal, scale int32) bool {
	return d.Equal(d.Truncate(scale))
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide converts a raw side value (case-insensitive) into a Side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid order side %q", s)
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus converts a raw status value (case-insensitive) into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusOpen:
		return StatusOpen, nil
	case StatusFilled:
		return StatusFilled, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

// Symbol is a tradable asset of the venue.
type Symbol string

const (
	SymbolBTC Symbol = "BTC"
	SymbolETH Symbol = "ETH"
)

// Symbols lists every symbol the venue supports.
var Symbols = []Symbol{SymbolBTC, SymbolETH}

// ParseSymbol converts a raw symbol value (case-insensitive) into a Symbol.
func ParseSymbol(s string) (Symbol, error) {
	sym := Symbol(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Symbols {
		if sym == known {
			return sym, nil
		}
	}
	return "", fmt.Errorf("unsupported symbol %q", s)
}

// User represents a venue participant and its free quote-currency balance.
type User struct {
	ID        uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string          `json:"name" gorm:"type:varchar(255)"`
	Email     string          `json:"email" gorm:"type:varchar(255);uniqueIndex"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(28,12);not null;default:0"`
	Assets    []Asset         `json:"assets,omitempty" gorm:"foreignKey:UserID"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Asset is a user's holding of one symbol. Amount is the free part,
// LockedAmount is reserved against open sell orders.
type Asset struct {
	ID           uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       uint64          `json:"user_id" gorm:"not null;uniqueIndex:idx_assets_user_symbol"`
	Symbol       Symbol          `json:"symbol" gorm:"type:varchar(10);not null;uniqueIndex:idx_assets_user_symbol"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:decimal(20,8);not null;default:0"`
	LockedAmount decimal.Decimal `json:"locked_amount" gorm:"type:decimal(20,8);not null;default:0"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Order is a limit order. Amount is the remaining quantity and only ever
// decreases while the order is OPEN.
type Order struct {
	ID        uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint64          `json:"user_id" gorm:"not null;index"`
	Symbol    Symbol          `json:"symbol" gorm:"type:varchar(10);not null;index:idx_orders_book,priority:1"`
	Side      Side            `json:"side" gorm:"type:varchar(4);not null;index:idx_orders_book,priority:2"`
	Status    Status          `json:"status" gorm:"type:varchar(10);not null;default:OPEN;index:idx_orders_book,priority:3"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(20,4);not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(20,8);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Cost returns the quote-currency value of the remaining amount.
func (o *Order) Cost() decimal.Decimal {
	return o.Price.Mul(o.Amount)
}

// IsOpen reports whether the order can still be filled or cancelled.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen
}

// Trade is an executed match between one buy and one sell order.
type Trade struct {
	ID          uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	BuyOrderID  uint64          `json:"buy_order_id" gorm:"not null;index"`
	SellOrderID uint64          `json:"sell_order_id" gorm:"not null;index"`
	Symbol      Symbol          `json:"symbol" gorm:"type:varchar(10);not null;index"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(20,4);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(20,8);not null"`
	Commission  decimal.Decimal `json:"commission" gorm:"type:decimal(20,8);not null"`
	CreatedAt   time.Time       `json:"created_at"`
}

// UserTrade is a trade seen from one participant's point of view.
type UserTrade struct {
	Trade
	Side  Side            `json:"side"`
	Sales decimal.Decimal `json:"sales"`
}

// All returns every persisted model, for migrations.
func All() []interface{} {
	return []interface{}{&User{}, &Asset{}, &Order{}, &Trade{}}
}
