package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	rate, err := cfg.Market.Commission()
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.015")))

	syms, err := cfg.Market.SymbolList()
	require.NoError(t, err)
	assert.Equal(t, []models.Symbol{models.SymbolBTC, models.SymbolETH}, syms)
}

func TestValidateRejectsUnknownSymbol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Market.Symbols = []string{"BTC", "DOGE"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCommission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Market.CommissionRate = "1.5"
	assert.Error(t, cfg.Validate())

	cfg.Market.CommissionRate = "abc"
	assert.Error(t, cfg.Validate())
}

func TestValidateQueueDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Queue.Driver = "badger"
	cfg.Queue.Path = ""
	assert.Error(t, cfg.Validate())

	cfg.Queue.Driver = "nats"
	assert.Error(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("market:\n  commission_rate: \"0.02\"\n  symbols: [\"ETH\"]\nserver:\n  addr: \":9090\"\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("PINCEX_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "0.02", cfg.Market.CommissionRate)
	assert.Equal(t, []string{"ETH"}, cfg.Market.Symbols)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}
