package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/papertrade/trading-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]model.Account
	assets     map[string]model.Asset
	trades     []model.Trade
	portfolios map[string]model.Portfolio
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]model.Account),
		assets:     make(map[string]model.Asset),
		portfolios: make(map[string]model.Portfolio),
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccountLocked(userID)
}

func (s *MemoryStore) getAccountLocked(userID string) (*model.Account, error) {
	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.UserID] = *a
	return nil
}

func (s *MemoryStore) UpsertAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.Symbol] = *a
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, symbol string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAssetLocked(symbol)
}

func (s *MemoryStore) getAssetLocked(symbol string) (*model.Asset, error) {
	a, ok := s.assets[symbol]
	if !ok || !a.Active {
		return nil, fmt.Errorf("asset %s: %w", symbol, ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) ListAssets(_ context.Context) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAssetsLocked()
}

func (s *MemoryStore) listAssetsLocked() ([]model.Asset, error) {
	assets := make([]model.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		if a.Active {
			assets = append(assets, a)
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	return assets, nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) UpdateTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTradeLocked(t)
}

func (s *MemoryStore) updateTradeLocked(t *model.Trade) error {
	for i := range s.trades {
		if s.trades[i].ID == t.ID {
			s.trades[i] = *t
			return nil
		}
	}
	return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
}

func (s *MemoryStore) GetTrade(_ context.Context, id, userID string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTradeLocked(id, userID)
}

func (s *MemoryStore) getTradeLocked(id, userID string) (*model.Trade, error) {
	for i := range s.trades {
		if s.trades[i].ID == id && s.trades[i].UserID == userID {
			t := s.trades[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) ListTrades(_ context.Context, userID string, openOnly bool, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTradesLocked(userID, openOnly, limit)
}

func (s *MemoryStore) listTradesLocked(userID string, openOnly bool, limit int) ([]model.Trade, error) {
	// Walk newest-inserted-first so ties on OpenedAt keep reverse insertion
	// order after the stable sort.
	var result []model.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if t.UserID != userID {
			continue
		}
		if openOnly && t.Status != model.StatusOpen {
			continue
		}
		result = append(result, t)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OpenedAt.After(result[j].OpenedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPortfolioLocked(userID)
}

func (s *MemoryStore) getPortfolioLocked(userID string) (*model.Portfolio, error) {
	p, ok := s.portfolios[userID]
	if !ok {
		return nil, fmt.Errorf("portfolio %s: %w", userID, ErrNotFound)
	}
	// Copy holdings so callers cannot mutate stored state.
	cp := p
	cp.Holdings = append([]model.Position(nil), p.Holdings...)
	return &cp, nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savePortfolioLocked(p)
}

func (s *MemoryStore) savePortfolioLocked(p *model.Portfolio) error {
	cp := *p
	cp.Holdings = append([]model.Position(nil), p.Holdings...)
	s.portfolios[p.UserID] = cp
	return nil
}

// Atomic takes a snapshot of the whole store, runs fn against an unlocked
// transactional view, and restores the snapshot if fn fails. The write lock
// is held throughout, so concurrent readers never observe partial state.
func (s *MemoryStore) Atomic(_ context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(&memTx{s: s}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	accounts   map[string]model.Account
	assets     map[string]model.Asset
	trades     []model.Trade
	portfolios map[string]model.Portfolio
}

func (s *MemoryStore) snapshotLocked() memSnapshot {
	snap := memSnapshot{
		accounts:   make(map[string]model.Account, len(s.accounts)),
		assets:     make(map[string]model.Asset, len(s.assets)),
		trades:     make([]model.Trade, len(s.trades)),
		portfolios: make(map[string]model.Portfolio, len(s.portfolios)),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.assets {
		snap.assets[k] = v
	}
	copy(snap.trades, s.trades)
	for k, v := range s.portfolios {
		v.Holdings = append([]model.Position(nil), v.Holdings...)
		snap.portfolios[k] = v
	}
	return snap
}

func (s *MemoryStore) restoreLocked(snap memSnapshot) {
	s.accounts = snap.accounts
	s.assets = snap.assets
	s.trades = snap.trades
	s.portfolios = snap.portfolios
}

// memTx is the transactional view handed to Atomic callbacks. The parent's
// write lock is already held, so it reaches the unlocked internals directly.
type memTx struct {
	s *MemoryStore
}

func (tx *memTx) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	return tx.s.getAccountLocked(userID)
}

func (tx *memTx) SaveAccount(_ context.Context, a *model.Account) error {
	tx.s.accounts[a.UserID] = *a
	return nil
}

func (tx *memTx) UpsertAsset(_ context.Context, a *model.Asset) error {
	tx.s.assets[a.Symbol] = *a
	return nil
}

func (tx *memTx) GetAsset(_ context.Context, symbol string) (*model.Asset, error) {
	return tx.s.getAssetLocked(symbol)
}

func (tx *memTx) ListAssets(_ context.Context) ([]model.Asset, error) {
	return tx.s.listAssetsLocked()
}

func (tx *memTx) InsertTrade(_ context.Context, t *model.Trade) error {
	tx.s.trades = append(tx.s.trades, *t)
	return nil
}

func (tx *memTx) UpdateTrade(_ context.Context, t *model.Trade) error {
	return tx.s.updateTradeLocked(t)
}

func (tx *memTx) GetTrade(_ context.Context, id, userID string) (*model.Trade, error) {
	return tx.s.getTradeLocked(id, userID)
}

func (tx *memTx) ListTrades(_ context.Context, userID string, openOnly bool, limit int) ([]model.Trade, error) {
	return tx.s.listTradesLocked(userID, openOnly, limit)
}

func (tx *memTx) GetPortfolio(_ context.Context, userID string) (*model.Portfolio, error) {
	return tx.s.getPortfolioLocked(userID)
}

func (tx *memTx) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	return tx.s.savePortfolioLocked(p)
}

// Atomic inside a transaction just runs fn; the outer snapshot covers it.
func (tx *memTx) Atomic(_ context.Context, fn func(Store) error) error {
	return fn(tx)
}
