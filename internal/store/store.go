// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/papertrade/trading-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
// Implementations wrap it with context; callers match with errors.Is.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// Every mutation performed by the ledger engine runs inside Atomic so that
// account, trade and portfolio writes commit or roll back together.
type Store interface {
	// --- Accounts ---

	// GetAccount retrieves a user's account.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// SaveAccount creates or updates an account.
	SaveAccount(ctx context.Context, a *model.Account) error

	// --- Assets (quote records) ---

	// UpsertAsset creates or replaces an asset quote record.
	UpsertAsset(ctx context.Context, a *model.Asset) error

	// GetAsset retrieves an active asset by symbol.
	GetAsset(ctx context.Context, symbol string) (*model.Asset, error)

	// ListAssets returns all active assets ordered by symbol.
	ListAssets(ctx context.Context) ([]model.Asset, error)

	// --- Trades ---

	// InsertTrade appends a new trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// UpdateTrade rewrites an existing trade (used to close it).
	UpdateTrade(ctx context.Context, t *model.Trade) error

	// GetTrade retrieves one trade owned by userID.
	GetTrade(ctx context.Context, id, userID string) (*model.Trade, error)

	// ListTrades returns a user's trades ordered newest-opened-first.
	// openOnly restricts to status OPEN; limit <= 0 means no cap.
	ListTrades(ctx context.Context, userID string, openOnly bool, limit int) ([]model.Trade, error)

	// --- Portfolios ---

	// GetPortfolio retrieves a user's portfolio with its holdings.
	GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error)

	// SavePortfolio creates or replaces a portfolio and its holdings.
	SavePortfolio(ctx context.Context, p *model.Portfolio) error

	// --- Transactions ---

	// Atomic runs fn against a transactional view of the store. If fn
	// returns an error no write made inside it is visible afterwards.
	Atomic(ctx context.Context, fn func(Store) error) error
}
