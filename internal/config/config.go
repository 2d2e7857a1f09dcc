// Package config loads server configuration from an optional YAML file with
// environment variable overrides. Env vars win so containerized deployments
// can tweak a baked-in config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the trading engine server.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// StartingBalance seeds new accounts (paper money).
	StartingBalance decimal.Decimal `yaml:"-"`

	// PriceRefreshInterval controls how often the feed poller runs.
	PriceRefreshInterval time.Duration `yaml:"-"`

	// BinancePairs are the crypto tickers pulled from Binance (e.g. BTCUSDT).
	BinancePairs []string `yaml:"binance_pairs"`

	// TradeRateLimit is the max trades per user per minute.
	TradeRateLimit int `yaml:"trade_rate_limit"`

	// CacheTTL bounds Redis cache entry lifetime.
	CacheTTL time.Duration `yaml:"-"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Port:                 "8080",
		StartingBalance:      decimal.NewFromInt(10000),
		PriceRefreshInterval: 30 * time.Second,
		TradeRateLimit:       30,
		CacheTTL:             30 * time.Second,
	}
}

// Load builds the config: defaults, then the YAML file at path (or the
// CONFIG_FILE env var) if one exists, then env var overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		// Decimals and durations come through as strings in YAML.
		var file struct {
			Config               `yaml:",inline"`
			StartingBalance      string `yaml:"starting_balance"`
			PriceRefreshInterval string `yaml:"price_refresh_interval"`
			CacheTTL             string `yaml:"cache_ttl"`
		}
		file.Config = cfg
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg = file.Config
		if file.StartingBalance != "" {
			d, err := decimal.NewFromString(file.StartingBalance)
			if err != nil || !d.IsPositive() {
				return cfg, fmt.Errorf("config: invalid starting_balance %q", file.StartingBalance)
			}
			cfg.StartingBalance = d
		}
		if file.PriceRefreshInterval != "" {
			d, err := time.ParseDuration(file.PriceRefreshInterval)
			if err != nil {
				return cfg, fmt.Errorf("config: invalid price_refresh_interval %q", file.PriceRefreshInterval)
			}
			cfg.PriceRefreshInterval = d
		}
		if file.CacheTTL != "" {
			d, err := time.ParseDuration(file.CacheTTL)
			if err != nil {
				return cfg, fmt.Errorf("config: invalid cache_ttl %q", file.CacheTTL)
			}
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("STARTING_BALANCE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || !d.IsPositive() {
			return cfg, fmt.Errorf("config: invalid STARTING_BALANCE %q", v)
		}
		cfg.StartingBalance = d
	}
	if v := os.Getenv("PRICE_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("config: invalid PRICE_REFRESH_INTERVAL %q", v)
		}
		cfg.PriceRefreshInterval = d
	}
	if v := os.Getenv("BINANCE_PAIRS"); v != "" {
		cfg.BinancePairs = splitPairs(v)
	}
	if v := os.Getenv("TRADE_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("config: invalid TRADE_RATE_LIMIT %q", v)
		}
		cfg.TradeRateLimit = n
	}

	return cfg, nil
}

func splitPairs(s string) []string {
	var pairs []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	return pairs
}
