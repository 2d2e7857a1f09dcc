package pricefeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/store"
)

// Poller refreshes all asset quotes on a fixed interval and persists them.
// A failed upstream fetch skips that symbol; the previous quote stays valid.
type Poller struct {
	store    store.Store
	binance  *BinanceClient
	mock     *MockGenerator
	pairs    []string
	interval time.Duration

	// OnUpdate, when set, is invoked for every refreshed asset (used to
	// broadcast price updates over WebSocket). Must not block.
	OnUpdate func(model.Asset)
}

// NewPoller creates a poller over the given crypto pairs (nil uses
// DefaultPairs) plus the synthetic stock/forex universe.
func NewPoller(st store.Store, binance *BinanceClient, mock *MockGenerator, pairs []string, interval time.Duration) *Poller {
	if len(pairs) == 0 {
		pairs = DefaultPairs
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		store:    st,
		binance:  binance,
		mock:     mock,
		pairs:    pairs,
		interval: interval,
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
// Must be called in a goroutine.
func (p *Poller) Run(ctx context.Context) {
	p.RefreshAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshAll(ctx)
		}
	}
}

// RefreshAll updates every crypto pair from Binance and regenerates the
// synthetic quotes.
func (p *Poller) RefreshAll(ctx context.Context) {
	for _, pair := range p.pairs {
		asset, err := p.binance.FetchTicker(ctx, pair)
		if err != nil {
			slog.Warn("crypto price refresh failed", "pair", pair, "err", err)
			continue
		}
		p.upsert(ctx, asset, "binance")
	}

	for _, asset := range p.mock.Generate() {
		a := asset
		p.upsert(ctx, &a, "mock")
	}
}

func (p *Poller) upsert(ctx context.Context, a *model.Asset, source string) {
	if err := p.store.UpsertAsset(ctx, a); err != nil {
		slog.Error("asset upsert failed", "symbol", a.Symbol, "err", err)
		return
	}
	metrics.PriceUpdatesTotal.WithLabelValues(source).Inc()
	if p.OnUpdate != nil {
		p.OnUpdate(*a)
	}
}
