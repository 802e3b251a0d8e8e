package identities

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/internal/bookkeeper"
	"github.com/Aidin1998/pincex_spot/internal/cache"
	"github.com/Aidin1998/pincex_spot/internal/trading/events"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// RegisterRequest carries the fields needed to open an account.
type RegisterRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Email string `json:"email" binding:"required,email,max=255"`
}

// Service registers users and serves their profiles.
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	ledger  bookkeeper.Ledger
	bus     events.EventBus
	cache   cache.ProfileCache
	symbols []models.Symbol
	signup  decimal.Decimal
}

// NewService creates a new identities service. New users start with
// signupBalance and an empty asset row for each symbol.
func NewService(
	logger *zap.Logger,
	db *gorm.DB,
	ledger bookkeeper.Ledger,
	bus events.EventBus,
	profiles cache.ProfileCache,
	symbols []models.Symbol,
	signupBalance decimal.Decimal,
) *Service {
	if profiles == nil {
		profiles = cache.NopProfileCache{}
	}
	return &Service{
		logger:  logger,
		db:      db,
		ledger:  ledger,
		bus:     bus,
		cache:   profiles,
		symbols: symbols,
		signup:  signupBalance,
	}
}

// Register creates a user, grants the signup balance and opens its asset
// rows in one transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", errors.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email %q: %w", req.Email, errors.ErrInvalidInput)
	}

	user := &models.User{Name: name, Email: email, Balance: s.signup}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("email %s: %w", email, errors.ErrConflict)
		}
		if err := tx.Create(user).Error; err != nil {
			if stderrors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("email %s: %w", email, errors.ErrConflict)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return s.ledger.WithTx(tx).EnsureAssets(ctx, user.ID, s.symbols)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.Uint64("user_id", user.ID))
	s.bus.Publish(ctx, events.UserCreated(*user))
	return user, nil
}

// Profile returns the user with its assets. Profiles are served from the
// cache when present.
func (s *Service) Profile(ctx context.Context, userID uint64) (*models.User, error) {
	if cached, err := s.cache.Get(ctx, userID); err != nil {
		s.logger.Warn("Profile cache read failed", zap.Uint64("user_id", userID), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Assets", func(db *gorm.DB) *gorm.DB { return db.Order("symbol") }).
		First(&user, userID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if err := s.cache.Set(ctx, &user); err != nil {
		s.logger.Warn("Profile cache write failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
	return &user, nil
}

// Exists reports whether userID belongs to a registered user.
func (s *Service) Exists(ctx context.Context, userID uint64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return count > 0, nil
}
