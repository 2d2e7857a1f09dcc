// Package api provides the HTTP surface of the trading engine: order
// execution, trade queries, portfolio and market-data endpoints, and the
// WebSocket feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/ledger"
	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/pricefeed"
	"github.com/papertrade/trading-engine/internal/ratelimit"
	"github.com/papertrade/trading-engine/internal/store"
	"github.com/papertrade/trading-engine/internal/symbol"
)

// Handler bundles the dependencies behind the HTTP routes.
type Handler struct {
	engine  *ledger.Engine
	store   store.Store
	limiter *ratelimit.Limiter
	poller  *pricefeed.Poller
	hub     *WSHub // optional; nil disables trade broadcasts
}

// NewHandler creates the HTTP handler set. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewHandler(engine *ledger.Engine, st store.Store, limiter *ratelimit.Limiter, poller *pricefeed.Poller, hub *WSHub) *Handler {
	return &Handler{
		engine:  engine,
		store:   st,
		limiter: limiter,
		poller:  poller,
		hub:     hub,
	}
}

// Routes mounts every endpoint under the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/trading", func(r chi.Router) {
		r.Post("/execute", h.ExecuteTrade)
		r.Post("/close/{tradeID}", h.CloseTrade)
		r.Get("/open", h.GetOpenTrades)
		r.Get("/history", h.GetTradeHistory)
		r.Get("/portfolio/{userID}", h.GetPortfolio)
	})
	r.Route("/market", func(r chi.Router) {
		r.Get("/assets", h.ListAssets)
		r.Get("/assets/{symbol}", h.GetAsset)
		r.Post("/update-prices", h.UpdatePrices)
	})
	if h.hub != nil {
		r.Get("/ws", h.hub.HandleWS)
	}
}

// ExecuteRequest is the JSON body for POST /api/v1/trading/execute.
type ExecuteRequest struct {
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`       // BUY or SELL
	Quantity   decimal.Decimal `json:"quantity"`   // positive
	OrderKind  string          `json:"order_kind"` // MARKET (default) or LIMIT
	LimitPrice decimal.Decimal `json:"limit_price"`
}

// ExecuteTrade handles POST /api/v1/trading/execute.
func (h *Handler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID != "" {
		if err := h.limiter.Allow(req.UserID); err != nil {
			metrics.RateLimitRejections.Inc()
			writeError(w, err.Error(), http.StatusTooManyRequests)
			return
		}
	}

	trade, err := h.engine.ExecuteTrade(r.Context(), ledger.ExecuteRequest{
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		OrderKind:  req.OrderKind,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(WSMessage{
			Type:     "trade_executed",
			Symbol:   trade.Symbol,
			Side:     trade.Side,
			Quantity: trade.Quantity.String(),
			Price:    trade.EntryPrice.String(),
			TradeID:  trade.ID,
		})
	}

	writeJSON(w, http.StatusCreated, trade)
}

// CloseTrade handles POST /api/v1/trading/close/{tradeID}?user_id=.
func (h *Handler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "tradeID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	if err := h.limiter.Allow(userID); err != nil {
		metrics.RateLimitRejections.Inc()
		writeError(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	trade, err := h.engine.CloseTrade(r.Context(), tradeID, userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(WSMessage{
			Type:     "trade_executed",
			Symbol:   trade.Symbol,
			Side:     trade.Side,
			Quantity: trade.Quantity.String(),
			Price:    trade.ExitPrice.String(),
			TradeID:  trade.ID,
		})
	}

	writeJSON(w, http.StatusOK, trade)
}

// GetOpenTrades handles GET /api/v1/trading/open?user_id=.
func (h *Handler) GetOpenTrades(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	trades, err := h.engine.GetOpenTrades(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetTradeHistory handles GET /api/v1/trading/history?user_id=&limit=.
func (h *Handler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := h.engine.GetTradeHistory(r.Context(), userID, limit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPortfolio handles GET /api/v1/trading/portfolio/{userID}.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	portfolio, err := h.engine.GetPortfolio(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if portfolio.Holdings == nil {
		portfolio.Holdings = []model.Position{}
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// ListAssets handles GET /api/v1/market/assets.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, "failed to list assets", http.StatusServiceUnavailable)
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// GetAsset handles GET /api/v1/market/assets/{symbol}.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	sym, err := symbol.Normalize(chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	asset, err := h.store.GetAsset(r.Context(), sym)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "asset not found: "+sym, http.StatusNotFound)
			return
		}
		writeError(w, "failed to load asset", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// UpdatePrices handles POST /api/v1/market/update-prices: forces an
// immediate refresh of every quote instead of waiting for the next tick.
func (h *Handler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		writeError(w, "price feed not configured", http.StatusServiceUnavailable)
		return
	}
	h.poller.RefreshAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "prices updated"})
}

// writeLedgerError maps engine errors to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidOrder):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrAssetNotFound), errors.Is(err, ledger.ErrTradeNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientHoldings),
		errors.Is(err, ledger.ErrTradeAlreadyClosed):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrStoreUnavailable):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
