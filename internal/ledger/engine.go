// Package ledger implements the trading ledger engine: the single writer of
// account, position and trade state. ExecuteTrade and CloseTrade each run as
// one atomic unit inside the store's transaction scope, serialized per user,
// so concurrent orders can never double-spend a balance or oversell a
// position.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/metrics"
	"github.com/papertrade/trading-engine/internal/model"
	"github.com/papertrade/trading-engine/internal/pricefeed"
	"github.com/papertrade/trading-engine/internal/store"
	"github.com/papertrade/trading-engine/internal/symbol"
)

// DefaultHistoryLimit caps GetTradeHistory when the caller passes no limit.
const DefaultHistoryLimit = 50

// defaultPriceTimeout bounds the quote lookup inside mutating operations.
// A timeout aborts the whole operation before any write happens.
const defaultPriceTimeout = 5 * time.Second

var hundred = decimal.NewFromInt(100)

// Engine orchestrates reads and writes across the account, position and
// trade records. It holds no per-user state of its own beyond the lock
// table; all durable state lives in the store.
type Engine struct {
	store           store.Store
	prices          pricefeed.Source
	locks           *userLocks
	startingBalance decimal.Decimal
	priceTimeout    time.Duration
}

// NewEngine creates an engine. Accounts touched for the first time are
// seeded with startingBalance.
func NewEngine(st store.Store, prices pricefeed.Source, startingBalance decimal.Decimal) *Engine {
	return &Engine{
		store:           st,
		prices:          prices,
		locks:           newUserLocks(),
		startingBalance: startingBalance,
		priceTimeout:    defaultPriceTimeout,
	}
}

// ExecuteRequest carries the parameters of one order.
type ExecuteRequest struct {
	UserID     string
	Symbol     string
	Side       string          // BUY or SELL
	Quantity   decimal.Decimal // must be positive
	OrderKind  string          // MARKET (default) or LIMIT
	LimitPrice decimal.Decimal // LIMIT fill price; zero means use the quote
}

// ExecuteTrade fills an order immediately at the quoted price (or the limit
// price for LIMIT orders), debits/credits the account, records the trade as
// OPEN, and folds the fill into the user's position — all atomically.
func (e *Engine) ExecuteTrade(ctx context.Context, req ExecuteRequest) (*model.Trade, error) {
	start := time.Now()

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOrder)
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidOrder)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	kind := req.OrderKind
	if kind == "" {
		kind = model.OrderMarket
	}
	if kind != model.OrderMarket && kind != model.OrderLimit {
		return nil, fmt.Errorf("%w: order kind must be MARKET or LIMIT", ErrInvalidOrder)
	}

	sym, err := symbol.Normalize(req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	defer e.locks.acquire(req.UserID).Unlock()

	quote, err := e.lookupPrice(ctx, sym)
	if err != nil {
		metrics.TradeRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	fillPrice := quote.Price
	if kind == model.OrderLimit && req.LimitPrice.IsPositive() {
		fillPrice = req.LimitPrice
	}
	notional := req.Quantity.Mul(fillPrice)

	var trade *model.Trade
	err = e.store.Atomic(ctx, func(tx store.Store) error {
		now := time.Now().UTC()

		account, err := e.loadOrCreateAccount(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}
		portfolio, err := loadOrCreatePortfolio(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		switch req.Side {
		case model.SideBuy:
			if notional.GreaterThan(account.CashBalance) {
				return fmt.Errorf("%w: order notional %s exceeds balance %s",
					ErrInsufficientFunds, notional, account.CashBalance)
			}
			account.CashBalance = account.CashBalance.Sub(notional)

		case model.SideSell:
			holding, _ := portfolio.Holding(sym)
			if holding == nil || holding.Quantity.LessThan(req.Quantity) {
				return fmt.Errorf("%w: %s", ErrInsufficientHoldings, sym)
			}
		}

		trade = &model.Trade{
			ID:         uuid.New().String(),
			UserID:     req.UserID,
			Symbol:     sym,
			Side:       req.Side,
			OrderKind:  kind,
			Quantity:   req.Quantity,
			EntryPrice: fillPrice,
			Notional:   notional,
			Status:     model.StatusOpen,
			OpenedAt:   now,
		}
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return err
		}

		applyFill(portfolio, account, req.Side, sym, req.Quantity, fillPrice)
		recomputeTotals(portfolio, now)

		account.UpdatedAt = now
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		return tx.SavePortfolio(ctx, portfolio)
	})
	if err != nil {
		metrics.TradeRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		return nil, wrapStoreErr(err)
	}

	metrics.TradesTotal.WithLabelValues(req.Side).Inc()
	metrics.TradeLatency.WithLabelValues(req.Side).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"user", req.UserID,
		"symbol", sym,
		"side", req.Side,
		"qty", req.Quantity.String(),
		"fill_price", fillPrice.String(),
		"notional", notional.String(),
	)
	return trade, nil
}

// CloseTrade transitions an OPEN trade to CLOSED at the current quote,
// realizing its P&L. For BUY-opened trades the position's market value is
// liquidated into cash; for both sides any remaining position in the symbol
// is reduced by the trade's quantity.
func (e *Engine) CloseTrade(ctx context.Context, tradeID, userID string) (*model.Trade, error) {
	if tradeID == "" || userID == "" {
		return nil, fmt.Errorf("%w: trade id and user id are required", ErrInvalidOrder)
	}

	defer e.locks.acquire(userID).Unlock()

	trade, err := e.store.GetTrade(ctx, tradeID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
		}
		return nil, wrapStoreErr(err)
	}
	if trade.Status == model.StatusClosed {
		return nil, fmt.Errorf("%w: %s", ErrTradeAlreadyClosed, tradeID)
	}

	quote, err := e.lookupPrice(ctx, trade.Symbol)
	if err != nil {
		return nil, err
	}
	exitPrice := quote.Price

	err = e.store.Atomic(ctx, func(tx store.Store) error {
		now := time.Now().UTC()

		// Long trades profit when price rises, short-style trades when it
		// falls.
		var pnl decimal.Decimal
		if trade.Side == model.SideBuy {
			pnl = exitPrice.Sub(trade.EntryPrice).Mul(trade.Quantity)
		} else {
			pnl = trade.EntryPrice.Sub(exitPrice).Mul(trade.Quantity)
		}

		trade.Status = model.StatusClosed
		trade.ClosedAt = &now
		trade.ExitPrice = exitPrice
		trade.RealizedPnL = pnl
		if trade.Notional.IsPositive() {
			trade.RealizedPnLPercent = pnl.Div(trade.Notional).Mul(hundred)
		}

		if err := tx.UpdateTrade(ctx, trade); err != nil {
			return err
		}

		account, err := e.loadOrCreateAccount(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if trade.Side == model.SideBuy {
			account.CashBalance = account.CashBalance.Add(exitPrice.Mul(trade.Quantity))
		}
		account.UpdatedAt = now
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}

		// Reduce the remaining position by the trade's quantity if the user
		// still holds the symbol. Sell proceeds were already credited at
		// execution time; this mirrors that flow deliberately.
		portfolio, err := loadOrCreatePortfolio(ctx, tx, userID)
		if err != nil {
			return err
		}
		if holding, i := portfolio.Holding(trade.Symbol); holding != nil {
			holding.Quantity = holding.Quantity.Sub(trade.Quantity)
			if !holding.Quantity.IsPositive() {
				portfolio.RemoveHolding(i)
			} else {
				markHolding(holding, holding.CurrentPrice)
			}
		}
		recomputeTotals(portfolio, now)
		return tx.SavePortfolio(ctx, portfolio)
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	slog.Info("trade closed",
		"trade_id", trade.ID,
		"user", userID,
		"symbol", trade.Symbol,
		"exit_price", exitPrice.String(),
		"realized_pnl", trade.RealizedPnL.String(),
	)
	return trade, nil
}

// GetOpenTrades returns the user's OPEN trades, newest first.
func (e *Engine) GetOpenTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	trades, err := e.store.ListTrades(ctx, userID, true, 0)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return trades, nil
}

// GetTradeHistory returns the user's trades regardless of status, newest
// first, capped at limit (DefaultHistoryLimit when limit <= 0).
func (e *Engine) GetTradeHistory(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	trades, err := e.store.ListTrades(ctx, userID, false, limit)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return trades, nil
}

// GetPortfolio refreshes every position against current quotes, persists the
// refreshed snapshot, and returns it. It takes the same per-user lock as the
// mutating operations so the refresh cannot clobber a concurrent trade.
func (e *Engine) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOrder)
	}

	defer e.locks.acquire(userID).Unlock()

	var portfolio *model.Portfolio
	err := e.store.Atomic(ctx, func(tx store.Store) error {
		now := time.Now().UTC()

		p, err := loadOrCreatePortfolio(ctx, tx, userID)
		if err != nil {
			return err
		}

		for i := range p.Holdings {
			h := &p.Holdings[i]
			asset, err := tx.GetAsset(ctx, h.Symbol)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue // keep the last snapshot for delisted symbols
				}
				return err
			}
			markHolding(h, asset.CurrentPrice)
		}
		recomputeTotals(p, now)

		if err := tx.SavePortfolio(ctx, p); err != nil {
			return err
		}
		portfolio = p
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return portfolio, nil
}

// --- internals ---

func (e *Engine) lookupPrice(ctx context.Context, sym string) (model.Quote, error) {
	pctx, cancel := context.WithTimeout(ctx, e.priceTimeout)
	defer cancel()

	quote, err := e.prices.GetPrice(pctx, sym)
	if err != nil {
		if errors.Is(err, pricefeed.ErrUnknownSymbol) {
			return model.Quote{}, fmt.Errorf("%w: %s", ErrAssetNotFound, sym)
		}
		return model.Quote{}, fmt.Errorf("%w: price lookup: %v", ErrStoreUnavailable, err)
	}
	return quote, nil
}

func (e *Engine) loadOrCreateAccount(ctx context.Context, tx store.Store, userID string, now time.Time) (*model.Account, error) {
	account, err := tx.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.Account{
			UserID:      userID,
			CashBalance: e.startingBalance,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}
	return account, err
}

func loadOrCreatePortfolio(ctx context.Context, tx store.Store, userID string) (*model.Portfolio, error) {
	portfolio, err := tx.GetPortfolio(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.Portfolio{UserID: userID}, nil
	}
	return portfolio, err
}

// applyFill folds an executed order into the portfolio (and, for sells, the
// account). Buys merge into the position at a quantity-weighted average
// cost; sells reduce the position — deleting it at zero — leave the
// remainder's average cost untouched, and credit the proceeds immediately.
func applyFill(p *model.Portfolio, account *model.Account, side, sym string, qty, fillPrice decimal.Decimal) {
	holding, i := p.Holding(sym)

	if side == model.SideBuy {
		if holding == nil {
			p.Holdings = append(p.Holdings, model.Position{
				Symbol:       sym,
				Quantity:     qty,
				AverageCost:  fillPrice,
				CurrentPrice: fillPrice,
				MarketValue:  qty.Mul(fillPrice),
			})
			return
		}
		newQty := holding.Quantity.Add(qty)
		totalCost := holding.AverageCost.Mul(holding.Quantity).Add(fillPrice.Mul(qty))
		holding.AverageCost = totalCost.Div(newQty)
		holding.Quantity = newQty
		markHolding(holding, fillPrice)
		return
	}

	// SELL
	if holding == nil {
		return // guarded by the holdings check before the trade is recorded
	}
	holding.Quantity = holding.Quantity.Sub(qty)
	if !holding.Quantity.IsPositive() {
		p.RemoveHolding(i)
	} else {
		markHolding(holding, fillPrice)
	}
	account.CashBalance = account.CashBalance.Add(qty.Mul(fillPrice))
}

// markHolding refreshes a position's mark-to-market snapshot at price.
func markHolding(h *model.Position, price decimal.Decimal) {
	h.CurrentPrice = price
	h.MarketValue = h.Quantity.Mul(price)
	h.UnrealizedPnL = price.Sub(h.AverageCost).Mul(h.Quantity)
	if h.AverageCost.IsPositive() {
		h.UnrealizedPnLPercent = price.Sub(h.AverageCost).Div(h.AverageCost).Mul(hundred)
	} else {
		h.UnrealizedPnLPercent = decimal.Zero
	}
}

// recomputeTotals rebuilds the portfolio aggregates from its holdings.
func recomputeTotals(p *model.Portfolio, now time.Time) {
	total := decimal.Zero
	pnl := decimal.Zero
	for _, h := range p.Holdings {
		total = total.Add(h.MarketValue)
		pnl = pnl.Add(h.UnrealizedPnL)
	}
	p.TotalMarketValue = total
	p.TotalUnrealizedPnL = pnl

	costBasis := total.Sub(pnl)
	if total.IsPositive() && !costBasis.IsZero() {
		p.TotalUnrealizedPnLPercent = pnl.Div(costBasis).Mul(hundred)
	} else {
		p.TotalUnrealizedPnLPercent = decimal.Zero
	}
	p.LastUpdated = now
}

// wrapStoreErr passes the engine's typed errors through untouched and folds
// everything else (conflicts, timeouts, I/O) into the retryable
// ErrStoreUnavailable.
func wrapStoreErr(err error) error {
	if err == nil || sentinel(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, ErrAssetNotFound):
		return "asset_not_found"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	default:
		return "store_error"
	}
}
