package pricefeed

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// mockQuote is a synthetic instrument with a fixed base price.
type mockQuote struct {
	Symbol string
	Name   string
	Type   string
	Base   float64
}

// defaultMockUniverse covers the stock and forex symbols no free feed serves.
var defaultMockUniverse = []mockQuote{
	{"AAPL", "Apple Inc.", model.AssetStock, 175.50},
	{"GOOGL", "Alphabet Inc.", model.AssetStock, 140.25},
	{"MSFT", "Microsoft Corp.", model.AssetStock, 380.75},
	{"TSLA", "Tesla Inc.", model.AssetStock, 245.30},
	{"AMZN", "Amazon.com Inc.", model.AssetStock, 155.80},
	{"EURUSD", "EUR/USD", model.AssetForex, 1.0850},
	{"GBPUSD", "GBP/USD", model.AssetForex, 1.2650},
	{"USDJPY", "USD/JPY", model.AssetForex, 149.50},
}

// MockGenerator synthesizes stock/forex quotes: each refresh re-prices every
// instrument within ±5% of its base price, with the 24h high/low at ±2% of
// the current price.
type MockGenerator struct {
	universe []mockQuote
	rng      *rand.Rand
}

// NewMockGenerator creates a generator over the default universe. A non-nil
// rng makes the walk deterministic for tests.
func NewMockGenerator(rng *rand.Rand) *MockGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &MockGenerator{universe: defaultMockUniverse, rng: rng}
}

// Generate produces a fresh quote for every instrument in the universe.
func (g *MockGenerator) Generate() []model.Asset {
	now := time.Now().UTC()
	assets := make([]model.Asset, 0, len(g.universe))

	for _, q := range g.universe {
		pctChange := (g.rng.Float64() - 0.5) * 10 // -5% to +5%
		current := q.Base * (1 + pctChange/100)

		price := decimal.NewFromFloat(current).Round(4)
		base := decimal.NewFromFloat(q.Base)
		change := price.Sub(base)

		assets = append(assets, model.Asset{
			Symbol:           q.Symbol,
			Name:             q.Name,
			Type:             q.Type,
			CurrentPrice:     price,
			Change24h:        change,
			ChangePercent24h: change.Div(base).Mul(decimal.NewFromInt(100)).Round(4),
			High24h:          price.Mul(decimal.NewFromFloat(1.02)).Round(4),
			Low24h:           price.Mul(decimal.NewFromFloat(0.98)).Round(4),
			Volume24h:        decimal.NewFromFloat(g.rng.Float64() * 1000000).Round(0),
			Active:           true,
			UpdatedAt:        now,
		})
	}
	return assets
}
