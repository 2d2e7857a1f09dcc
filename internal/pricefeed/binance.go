package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// DefaultBinanceURL is Binance's public REST API.
const DefaultBinanceURL = "https://api.binance.com/api/v3"

// DefaultPairs is the crypto universe refreshed when none is configured.
var DefaultPairs = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "ADAUSDT", "SOLUSDT"}

var cryptoNames = map[string]string{
	"BTC":  "Bitcoin",
	"ETH":  "Ethereum",
	"BNB":  "Binance Coin",
	"ADA":  "Cardano",
	"SOL":  "Solana",
	"XRP":  "Ripple",
	"DOT":  "Polkadot",
	"DOGE": "Dogecoin",
}

// BinanceClient fetches 24hr ticker statistics from the Binance REST API.
type BinanceClient struct {
	baseURL string
	client  *http.Client
}

// NewBinanceClient creates a client for baseURL ("" uses the public API).
func NewBinanceClient(baseURL string) *BinanceClient {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	return &BinanceClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// tickerResponse mirrors Binance's /ticker/24hr payload. Prices arrive as
// strings and are parsed into decimals.
type tickerResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
}

// FetchTicker fetches the 24hr ticker for one trading pair (e.g. BTCUSDT)
// and maps it to an asset record keyed by the base symbol (BTC).
func (c *BinanceClient) FetchTicker(ctx context.Context, pair string) (*model.Asset, error) {
	u := fmt.Sprintf("%s/ticker/24hr?symbol=%s", c.baseURL, url.QueryEscape(pair))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker %s: %w", pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ticker %s: unexpected status %d", pair, resp.StatusCode)
	}

	var tick tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tick); err != nil {
		return nil, fmt.Errorf("decode ticker %s: %w", pair, err)
	}

	price, err := decimal.NewFromString(tick.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("ticker %s: bad lastPrice %q", pair, tick.LastPrice)
	}

	symbol := strings.TrimSuffix(pair, "USDT")
	name := cryptoNames[symbol]
	if name == "" {
		name = symbol
	}

	change, _ := decimal.NewFromString(tick.PriceChange)
	changePct, _ := decimal.NewFromString(tick.PriceChangePercent)
	high, _ := decimal.NewFromString(tick.HighPrice)
	low, _ := decimal.NewFromString(tick.LowPrice)
	volume, _ := decimal.NewFromString(tick.Volume)

	return &model.Asset{
		Symbol:           symbol,
		Name:             name,
		Type:             model.AssetCrypto,
		CurrentPrice:     price,
		Change24h:        change,
		ChangePercent24h: changePct,
		High24h:          high,
		Low24h:           low,
		Volume24h:        volume,
		Active:           true,
		UpdatedAt:        time.Now().UTC(),
	}, nil
}
