package bookkeeper

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

// ErrNegativeAmount is returned when a ledger mutation is asked to move a
// negative quantity.
var ErrNegativeAmount = stderrors.New("amount must not be negative")

// ErrAmountScale is returned when an amount carries more decimal places
// than its column stores.
var ErrAmountScale = stderrors.New("amount exceeds column scale")

// Ledger is the set of balance and asset mutations the trading services need.
// Every mutation reads its row for update inside a transaction, computes the
// new value in decimal and writes it back, so no row ever goes negative.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error)
	Debit(ctx context.Context, userID uint64, amount decimal.Decimal) error
	Credit(ctx context.Context, userID uint64, amount decimal.Decimal) error
	GetAsset(ctx context.Context, userID uint64, symbol models.Symbol) (*models.Asset, error)
	ListAssets(ctx context.Context, userID uint64) ([]models.Asset, error)
	EnsureAssets(ctx context.Context, userID uint64, symbols []models.Symbol) error
	Lock(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error
	Unlock(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error
	Sold(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error
	Bought(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error
}

// Service implements Ledger on gorm
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new ledger service
func NewService(logger *zap.Logger, db *gorm.DB) *Service {
	return &Service{
		logger: logger,
		db:     db,
	}
}

// WithTx returns a ledger bound to tx. All calls through it join the
// caller's transaction.
func (s *Service) WithTx(tx *gorm.DB) Ledger {
	return &Service{logger: s.logger, db: tx}
}

// GetBalance returns the user's free quote-currency balance.
func (s *Service) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "balance").First(&user, userID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, fmt.Errorf("user %d: %w", userID, errors.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// Debit decrements the user's balance, failing with ErrInsufficientBalance
// when the balance is smaller than amount.
func (s *Service) Debit(ctx context.Context, userID uint64, amount decimal.Decimal) error {
	if err := checkAmount(amount, models.BalanceScale); err != nil {
		return err
	}
	return s.updateBalance(ctx, userID, func(balance decimal.Decimal) (decimal.Decimal, error) {
		if balance.LessThan(amount) {
			s.logger.Debug("Debit rejected",
				zap.Uint64("user_id", userID),
				zap.String("balance", balance.String()),
				zap.String("amount", amount.String()))
			return balance, fmt.Errorf("debit %s from user %d: %w", amount, userID, errors.ErrInsufficientBalance)
		}
		return balance.Sub(amount), nil
	})
}

// Credit increments the user's balance.
func (s *Service) Credit(ctx context.Context, userID uint64, amount decimal.Decimal) error {
	if err := checkAmount(amount, models.BalanceScale); err != nil {
		return err
	}
	return s.updateBalance(ctx, userID, func(balance decimal.Decimal) (decimal.Decimal, error) {
		return balance.Add(amount), nil
	})
}

// updateBalance reads the user row for update, applies fn in decimal
// arithmetic and writes the absolute result back.
func (s *Service) updateBalance(ctx context.Context, userID uint64, fn func(decimal.Decimal) (decimal.Decimal, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "balance").
			First(&user, userID).Error
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %d: %w", userID, errors.ErrNotFound)
			}
			return fmt.Errorf("failed to read balance: %w", err)
		}

		next, err := fn(user.Balance)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("balance", next).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		return nil
	})
}

// GetAsset returns the user's holding of symbol, creating an empty row
// when none exists yet.
func (s *Service) GetAsset(ctx context.Context, userID uint64, symbol models.Symbol) (*models.Asset, error) {
	if err := s.ensureAsset(ctx, userID, symbol); err != nil {
		return nil, err
	}
	var asset models.Asset
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		First(&asset).Error; err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}

// ListAssets returns every asset row of the user.
func (s *Service) ListAssets(ctx context.Context, userID uint64) ([]models.Asset, error) {
	var assets []models.Asset
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol").
		Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

// EnsureAssets creates zero rows for each symbol the user does not hold yet.
func (s *Service) EnsureAssets(ctx context.Context, userID uint64, symbols []models.Symbol) error {
	for _, sym := range symbols {
		if err := s.ensureAsset(ctx, userID, sym); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureAsset(ctx context.Context, userID uint64, symbol models.Symbol) error {
	asset := models.Asset{
		UserID:       userID,
		Symbol:       symbol,
		Amount:       decimal.Zero,
		LockedAmount: decimal.Zero,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
			DoNothing: true,
		}).
		Create(&asset).Error
	if err != nil {
		return fmt.Errorf("failed to create asset %s for user %d: %w", symbol, userID, err)
	}
	return nil
}

// Lock moves amount from free to locked, failing with ErrInsufficientAsset
// when the free amount is smaller.
func (s *Service) Lock(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error {
	if err := checkAmount(amount, models.AmountScale); err != nil {
		return err
	}
	return s.updateAsset(ctx, userID, symbol, func(a *models.Asset) error {
		if a.Amount.LessThan(amount) {
			return fmt.Errorf("lock %s %s for user %d: %w", amount, symbol, userID, errors.ErrInsufficientAsset)
		}
		a.Amount = a.Amount.Sub(amount)
		a.LockedAmount = a.LockedAmount.Add(amount)
		return nil
	})
}

// Unlock moves amount from locked back to free.
func (s *Service) Unlock(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error {
	if err := checkAmount(amount, models.AmountScale); err != nil {
		return err
	}
	return s.updateAsset(ctx, userID, symbol, func(a *models.Asset) error {
		if a.LockedAmount.LessThan(amount) {
			return fmt.Errorf("unlock %s %s for user %d: %w", amount, symbol, userID, errors.ErrInsufficientAsset)
		}
		a.Amount = a.Amount.Add(amount)
		a.LockedAmount = a.LockedAmount.Sub(amount)
		return nil
	})
}

// Sold removes amount from the locked part after a sell settles.
func (s *Service) Sold(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error {
	if err := checkAmount(amount, models.AmountScale); err != nil {
		return err
	}
	return s.updateAsset(ctx, userID, symbol, func(a *models.Asset) error {
		if a.LockedAmount.LessThan(amount) {
			return fmt.Errorf("deduct sold %s %s for user %d: %w", amount, symbol, userID, errors.ErrInsufficientAsset)
		}
		a.LockedAmount = a.LockedAmount.Sub(amount)
		return nil
	})
}

// Bought adds amount to the free part after a buy settles.
func (s *Service) Bought(ctx context.Context, userID uint64, symbol models.Symbol, amount decimal.Decimal) error {
	if err := checkAmount(amount, models.AmountScale); err != nil {
		return err
	}
	if err := s.ensureAsset(ctx, userID, symbol); err != nil {
		return err
	}
	return s.updateAsset(ctx, userID, symbol, func(a *models.Asset) error {
		a.Amount = a.Amount.Add(amount)
		return nil
	})
}

// updateAsset reads the asset row for update, lets fn change it and writes
// both amounts back. A missing row is a zero holding when the user exists.
func (s *Service) updateAsset(ctx context.Context, userID uint64, symbol models.Symbol, fn func(*models.Asset) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assets []models.Asset
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND symbol = ?", userID, symbol).
			Limit(1).
			Find(&assets).Error
		if err != nil {
			return fmt.Errorf("failed to read asset: %w", err)
		}
		if len(assets) == 0 {
			var count int64
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check user: %w", err)
			}
			if count == 0 {
				return fmt.Errorf("user %d: %w", userID, errors.ErrNotFound)
			}
			return fmt.Errorf("user %d holds no %s: %w", userID, symbol, errors.ErrInsufficientAsset)
		}

		asset := &assets[0]
		if err := fn(asset); err != nil {
			return err
		}
		err = tx.Model(&models.Asset{}).Where("id = ?", asset.ID).
			Updates(map[string]interface{}{
				"amount":        asset.Amount,
				"locked_amount": asset.LockedAmount,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update asset: %w", err)
		}
		return nil
	})
}

// checkAmount rejects negative amounts and amounts the column would round.
func checkAmount(amount decimal.Decimal, scale int32) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !models.FitsScale(amount, scale) {
		return fmt.Errorf("%s has more than %d decimals: %w", amount, scale, ErrAmountScale)
	}
	return nil
}
