package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Shield from ambient environment.
	for _, k := range []string{"CONFIG_FILE", "PORT", "DATABASE_URL", "REDIS_URL", "STARTING_BALANCE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.StartingBalance.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 30*time.Second, cfg.PriceRefreshInterval)
	assert.Equal(t, 30, cfg.TradeRateLimit)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
database_url: postgres://localhost/trading
starting_balance: "50000"
price_refresh_interval: 10s
binance_pairs: [BTCUSDT, ETHUSDT]
trade_rate_limit: 5
cache_ttl: 1m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://localhost/trading", cfg.DatabaseURL)
	assert.True(t, cfg.StartingBalance.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, 10*time.Second, cfg.PriceRefreshInterval)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.BinancePairs)
	assert.Equal(t, 5, cfg.TradeRateLimit)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\n"), 0o644))

	t.Setenv("PORT", "7070")
	t.Setenv("STARTING_BALANCE", "250000")
	t.Setenv("BINANCE_PAIRS", "solusdt, adausdt")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.True(t, cfg.StartingBalance.Equal(decimal.NewFromInt(250000)))
	assert.Equal(t, []string{"SOLUSDT", "ADAUSDT"}, cfg.BinancePairs)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("bad starting balance env", func(t *testing.T) {
		t.Setenv("STARTING_BALANCE", "-5")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("bad interval env", func(t *testing.T) {
		t.Setenv("PRICE_REFRESH_INTERVAL", "soon")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("bad rate limit env", func(t *testing.T) {
		t.Setenv("TRADE_RATE_LIMIT", "0")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/does/not/exist.yaml")
		assert.Error(t, err)
	})
}
