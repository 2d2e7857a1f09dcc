package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/trading-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err == nil {
		var a model.Account
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, accountKey(userID), a)
	return a, nil
}

func (s *CachedStore) GetAsset(ctx context.Context, symbol string) (*model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetKey(symbol)).Bytes()
	if err == nil {
		var a model.Asset
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAsset(ctx, symbol)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, assetKey(symbol), a)
	return a, nil
}

func (s *CachedStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	data, err := s.rdb.Get(ctx, portfolioKey(userID)).Bytes()
	if err == nil {
		var p model.Portfolio
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, portfolioKey(userID), p)
	return p, nil
}

// --- Write-through / invalidating writes ---

func (s *CachedStore) SaveAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.SaveAccount(ctx, a); err != nil {
		return err
	}
	s.cacheJSON(ctx, accountKey(a.UserID), a)
	return nil
}

func (s *CachedStore) UpsertAsset(ctx context.Context, a *model.Asset) error {
	if err := s.primary.UpsertAsset(ctx, a); err != nil {
		return err
	}
	s.cacheJSON(ctx, assetKey(a.Symbol), a)
	return nil
}

func (s *CachedStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.primary.SavePortfolio(ctx, p); err != nil {
		return err
	}
	s.cacheJSON(ctx, portfolioKey(p.UserID), p)
	return nil
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	s.invalidateUser(ctx, t.UserID)
	return nil
}

func (s *CachedStore) UpdateTrade(ctx context.Context, t *model.Trade) error {
	if err := s.primary.UpdateTrade(ctx, t); err != nil {
		return err
	}
	s.invalidateUser(ctx, t.UserID)
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return s.primary.ListAssets(ctx)
}

func (s *CachedStore) GetTrade(ctx context.Context, id, userID string) (*model.Trade, error) {
	return s.primary.GetTrade(ctx, id, userID)
}

func (s *CachedStore) ListTrades(ctx context.Context, userID string, openOnly bool, limit int) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, userID, openOnly, limit)
}

// Atomic delegates to the primary. The callback sees the primary's
// transactional store directly (cache bypassed inside the transaction); a
// recorder collects the users it touches so their cached account/portfolio
// entries can be dropped once the transaction commits.
func (s *CachedStore) Atomic(ctx context.Context, fn func(Store) error) error {
	rec := &txRecorder{users: make(map[string]struct{})}
	err := s.primary.Atomic(ctx, func(tx Store) error {
		rec.Store = tx
		return fn(rec)
	})
	if err != nil {
		return err
	}
	for userID := range rec.users {
		s.invalidateUser(ctx, userID)
	}
	return nil
}

// txRecorder notes which users are written inside a transaction.
type txRecorder struct {
	Store
	users map[string]struct{}
}

func (r *txRecorder) SaveAccount(ctx context.Context, a *model.Account) error {
	r.users[a.UserID] = struct{}{}
	return r.Store.SaveAccount(ctx, a)
}

func (r *txRecorder) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	r.users[p.UserID] = struct{}{}
	return r.Store.SavePortfolio(ctx, p)
}

func (r *txRecorder) InsertTrade(ctx context.Context, t *model.Trade) error {
	r.users[t.UserID] = struct{}{}
	return r.Store.InsertTrade(ctx, t)
}

func (r *txRecorder) UpdateTrade(ctx context.Context, t *model.Trade) error {
	r.users[t.UserID] = struct{}{}
	return r.Store.UpdateTrade(ctx, t)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) invalidateUser(ctx context.Context, userID string) {
	s.rdb.Del(ctx, accountKey(userID), portfolioKey(userID))
}

func accountKey(uid string) string   { return fmt.Sprintf("account:%s", uid) }
func assetKey(symbol string) string  { return fmt.Sprintf("asset:%s", symbol) }
func portfolioKey(uid string) string { return fmt.Sprintf("portfolio:%s", uid) }
