package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Aidin1998/pincex_spot/internal/database"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

// NewTestDB opens a migrated shared in-memory SQLite database private to t.
// The pool is limited to one connection, so code running inside a
// transaction must use that transaction handle.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(database.SQLiteDialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// SeedUser inserts a user with the given balance and one asset row per
// supported symbol, holding the free amounts listed in holdings.
func SeedUser(t testing.TB, db *gorm.DB, balance string, holdings map[models.Symbol]string) *models.User {
	t.Helper()
	user := &models.User{
		Name:    "user",
		Email:   fmt.Sprintf("user-%d@example.com", nextSeq()),
		Balance: decimal.RequireFromString(balance),
	}
	require.NoError(t, db.Create(user).Error)

	for _, sym := range models.Symbols {
		amount := decimal.Zero
		if raw, ok := holdings[sym]; ok {
			amount = decimal.RequireFromString(raw)
		}
		require.NoError(t, db.Create(&models.Asset{
			UserID:       user.ID,
			Symbol:       sym,
			Amount:       amount,
			LockedAmount: decimal.Zero,
		}).Error)
	}
	return user
}

// ReloadUser reads the current user row.
func ReloadUser(t testing.TB, db *gorm.DB, id uint64) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return &u
}

// ReloadAsset reads the current asset row for a user and symbol.
func ReloadAsset(t testing.TB, db *gorm.DB, userID uint64, sym models.Symbol) *models.Asset {
	t.Helper()
	var a models.Asset
	require.NoError(t, db.Where("user_id = ? AND symbol = ?", userID, sym).First(&a).Error)
	return &a
}

// ReloadOrder reads the current order row.
func ReloadOrder(t testing.TB, db *gorm.DB, id uint64) *models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, db.First(&o, id).Error)
	return &o
}
