package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/trading-engine/internal/ledger"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/pricefeed"
	"github.com/papertrade/trading-engine/internal/ratelimit"
	"github.com/papertrade/trading-engine/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	seed := func(symbol string, price float64) {
		err := st.UpsertAsset(context.Background(), &model.Asset{
			Symbol:       symbol,
			Name:         symbol,
			Type:         model.AssetStock,
			CurrentPrice: decimal.NewFromFloat(price),
			Active:       true,
			UpdatedAt:    time.Now().UTC(),
		})
		require.NoError(t, err)
	}
	seed("AAPL", 150)
	seed("BTC", 65000)

	engine := ledger.NewEngine(st, pricefeed.NewStoreSource(st), decimal.NewFromInt(100000))
	limiter := ratelimit.NewLimiter(100, time.Minute)
	h := NewHandler(engine, st, limiter, nil, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return r, st
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestExecuteTradeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/trading/execute",
		`{"user_id":"alice","symbol":"AAPL","side":"BUY","quantity":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var trade model.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trade))
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, model.StatusOpen, trade.Status)
	assert.True(t, trade.EntryPrice.Equal(decimal.NewFromInt(150)))
	assert.NotEmpty(t, trade.ID)
}

func TestExecuteTradeErrorMapping(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"missing user", `{"symbol":"AAPL","side":"BUY","quantity":"1"}`, http.StatusBadRequest},
		{"bad side", `{"user_id":"a","symbol":"AAPL","side":"HOLD","quantity":"1"}`, http.StatusBadRequest},
		{"unknown symbol", `{"user_id":"a","symbol":"NOPE","side":"BUY","quantity":"1"}`, http.StatusNotFound},
		{"insufficient funds", `{"user_id":"a","symbol":"BTC","side":"BUY","quantity":"100"}`, http.StatusConflict},
		{"insufficient holdings", `{"user_id":"a","symbol":"AAPL","side":"SELL","quantity":"1"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/trading/execute", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestExecuteTradeRateLimited(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertAsset(context.Background(), &model.Asset{
		Symbol: "AAPL", CurrentPrice: decimal.NewFromInt(1), Active: true,
	}))

	engine := ledger.NewEngine(st, pricefeed.NewStoreSource(st), decimal.NewFromInt(100000))
	h := NewHandler(engine, st, ratelimit.NewLimiter(2, time.Minute), nil, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)

	body := `{"user_id":"alice","symbol":"AAPL","side":"BUY","quantity":"1"}`
	for i := 0; i < 2; i++ {
		rec := doJSON(t, r, http.MethodPost, "/api/v1/trading/execute", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/trading/execute", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCloseTradeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/trading/execute",
		`{"user_id":"alice","symbol":"AAPL","side":"BUY","quantity":"2"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var trade model.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trade))

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/trading/close/%s?user_id=alice", trade.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var closed model.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.Equal(t, model.StatusClosed, closed.Status)

	// Closing again conflicts; closing as another user is not found.
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/trading/close/%s?user_id=alice", trade.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/trading/close/%s?user_id=bob", trade.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing user_id.
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/trading/close/%s", trade.ID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenAndHistoryEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/trading/execute",
			`{"user_id":"alice","symbol":"AAPL","side":"BUY","quantity":"1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/trading/open?user_id=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var open []model.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	assert.Len(t, open, 3)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/trading/history?user_id=alice&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []model.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 2)

	// Unknown user gets an empty list, not an error.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/trading/open?user_id=nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	// Missing user_id and bad limit are rejected.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/trading/open", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/trading/history?user_id=alice&limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortfolioEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/trading/execute",
		`{"user_id":"alice","symbol":"AAPL","side":"BUY","quantity":"4"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/trading/portfolio/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var p model.Portfolio
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Len(t, p.Holdings, 1)
	assert.Equal(t, "AAPL", p.Holdings[0].Symbol)
	assert.True(t, p.Holdings[0].Quantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, p.TotalMarketValue.Equal(decimal.NewFromInt(600)))
}

func TestMarketAssetEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/market/assets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var assets []model.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	assert.Len(t, assets, 2)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/market/assets/aapl", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var asset model.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asset))
	assert.Equal(t, "AAPL", asset.Symbol)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/market/assets/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/market/assets/bad-symbol!", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePricesWithoutPoller(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/market/update-prices", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
