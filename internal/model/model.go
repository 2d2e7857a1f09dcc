// Package model defines the core domain types shared across the trading engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order kinds. A LIMIT order only affects the fill price: when a limit price
// is supplied the order fills immediately at that price instead of the quote.
// Nothing rests on a book.
const (
	OrderMarket = "MARKET"
	OrderLimit  = "LIMIT"
)

// Trade statuses.
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Asset types.
const (
	AssetCrypto = "CRYPTO"
	AssetStock  = "STOCK"
	AssetForex  = "FOREX"
)

// Account holds one user's virtual cash balance. Mutated only by the ledger
// engine; CashBalance never goes below zero after a committed operation.
type Account struct {
	UserID      string          `json:"user_id" db:"user_id"`
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Asset is the durable quote record for one tradable symbol, maintained by
// the price feed on its own schedule.
type Asset struct {
	Symbol           string          `json:"symbol" db:"symbol"`
	Name             string          `json:"name" db:"name"`
	Type             string          `json:"type" db:"type"` // CRYPTO, STOCK or FOREX
	CurrentPrice     decimal.Decimal `json:"current_price" db:"current_price"`
	Change24h        decimal.Decimal `json:"change_24h" db:"change_24h"`
	ChangePercent24h decimal.Decimal `json:"change_percent_24h" db:"change_percent_24h"`
	High24h          decimal.Decimal `json:"high_24h" db:"high_24h"`
	Low24h           decimal.Decimal `json:"low_24h" db:"low_24h"`
	Volume24h        decimal.Decimal `json:"volume_24h" db:"volume_24h"`
	Active           bool            `json:"active" db:"active"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Quote is the price lookup result the ledger consumes.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Trade is one executed order. Created OPEN by ExecuteTrade; transitions to
// CLOSED exactly once by CloseTrade, which fills the closing fields. Never
// deleted by the engine.
type Trade struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       string          `json:"side" db:"side"`             // BUY or SELL
	OrderKind  string          `json:"order_kind" db:"order_kind"` // MARKET or LIMIT
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"`
	Notional   decimal.Decimal `json:"notional" db:"notional"` // quantity * entryPrice
	Status     string          `json:"status" db:"status"`
	OpenedAt   time.Time       `json:"opened_at" db:"opened_at"`

	ClosedAt           *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
	ExitPrice          decimal.Decimal `json:"exit_price" db:"exit_price"`
	RealizedPnL        decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	RealizedPnLPercent decimal.Decimal `json:"realized_pnl_percent" db:"realized_pnl_percent"`
}

// Position is a user's aggregate holding in one symbol. Quantity is always
// positive while the position exists; a position driven to zero is deleted,
// never stored. AverageCost only moves on a BUY that increases quantity.
// CurrentPrice and the derived fields are a mark-to-market snapshot, not
// authoritative state.
type Position struct {
	Symbol               string          `json:"symbol" db:"symbol"`
	Quantity             decimal.Decimal `json:"quantity" db:"quantity"`
	AverageCost          decimal.Decimal `json:"average_cost" db:"average_cost"`
	CurrentPrice         decimal.Decimal `json:"current_price" db:"current_price"`
	MarketValue          decimal.Decimal `json:"market_value" db:"market_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent" db:"unrealized_pnl_percent"`
}

// Portfolio is the set of a user's positions plus derived aggregates. It is a
// view recomputed from positions and current quotes, persisted as a cache
// with LastUpdated.
type Portfolio struct {
	UserID                    string          `json:"user_id" db:"user_id"`
	Holdings                  []Position      `json:"holdings"`
	TotalMarketValue          decimal.Decimal `json:"total_market_value" db:"total_market_value"`
	TotalUnrealizedPnL        decimal.Decimal `json:"total_unrealized_pnl" db:"total_unrealized_pnl"`
	TotalUnrealizedPnLPercent decimal.Decimal `json:"total_unrealized_pnl_percent" db:"total_unrealized_pnl_percent"`
	LastUpdated               time.Time       `json:"last_updated" db:"last_updated"`
}

// Holding returns the position for symbol and its index in Holdings,
// or (nil, -1) if the user holds none of it.
func (p *Portfolio) Holding(symbol string) (*Position, int) {
	for i := range p.Holdings {
		if p.Holdings[i].Symbol == symbol {
			return &p.Holdings[i], i
		}
	}
	return nil, -1
}

// RemoveHolding drops the position at index i.
func (p *Portfolio) RemoveHolding(i int) {
	p.Holdings = append(p.Holdings[:i], p.Holdings[i+1:]...)
}
