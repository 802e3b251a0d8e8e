package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/internal/config"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := Open(config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         "file:database_open_test?mode=memory&cache=shared",
		AutoMigrate: true,
	}, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	for _, table := range []string{"users", "assets", "orders", "trades"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"}, zap.NewNop())
	assert.Error(t, err)
}

func TestSQLiteStoresDecimalsAsText(t *testing.T) {
	db, err := Open(config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         "file:database_decimal_test?mode=memory&cache=shared",
		AutoMigrate: true,
	}, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	user := &models.User{Name: "n", Email: "n@example.com", Balance: decimal.RequireFromString("0.3")}
	require.NoError(t, db.Create(user).Error)

	var storage string
	require.NoError(t, db.Raw("SELECT typeof(balance) FROM users WHERE id = ?", user.ID).Scan(&storage).Error)
	assert.Equal(t, "text", storage)

	next := user.Balance.Sub(decimal.RequireFromString("0.1"))
	require.NoError(t, db.Model(user).Update("balance", next).Error)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Equal(t, "0.2", reloaded.Balance.String())
}
