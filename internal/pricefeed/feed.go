// Package pricefeed supplies current tradable prices. Quotes are refreshed on
// an independent schedule (Binance for crypto, a synthetic generator for
// stocks and forex) and persisted as asset records; the ledger engine only
// ever reads them.
package pricefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/store"
)

// ErrUnknownSymbol is returned when no price exists for a symbol.
var ErrUnknownSymbol = errors.New("pricefeed: unknown symbol")

// Source resolves a symbol to its current price.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (model.Quote, error)
}

// StoreSource reads quotes from the asset records the poller maintains.
type StoreSource struct {
	store store.Store
}

// NewStoreSource creates a Source backed by the given store.
func NewStoreSource(st store.Store) *StoreSource {
	return &StoreSource{store: st}
}

func (s *StoreSource) GetPrice(ctx context.Context, symbol string) (model.Quote, error) {
	a, err := s.store.GetAsset(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return model.Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if err != nil {
		return model.Quote{}, fmt.Errorf("get price %s: %w", symbol, err)
	}
	return model.Quote{
		Symbol:    a.Symbol,
		Price:     a.CurrentPrice,
		Timestamp: a.UpdatedAt,
	}, nil
}
