package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/trading-engine/internal/model"
)

func TestMemoryStoreAccountRoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.GetAccount(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	acct := &model.Account{
		UserID:      "alice",
		CashBalance: decimal.NewFromInt(100000),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.SaveAccount(ctx, acct))

	got, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.CashBalance.Equal(decimal.NewFromInt(100000)))

	// The stored copy is isolated from later mutation of the original.
	acct.CashBalance = decimal.Zero
	got, err = st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.CashBalance.Equal(decimal.NewFromInt(100000)))
}

func TestMemoryStoreAssetActiveFilter(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.UpsertAsset(ctx, &model.Asset{Symbol: "AAPL", Active: true}))
	require.NoError(t, st.UpsertAsset(ctx, &model.Asset{Symbol: "DEAD", Active: false}))

	_, err := st.GetAsset(ctx, "AAPL")
	require.NoError(t, err)

	_, err = st.GetAsset(ctx, "DEAD")
	assert.ErrorIs(t, err, ErrNotFound)

	assets, err := st.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "AAPL", assets[0].Symbol)
}

func TestMemoryStoreListTradesOrderingAndFilters(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	mk := func(id string, openedAt time.Time, status string) *model.Trade {
		return &model.Trade{
			ID:       id,
			UserID:   "alice",
			Symbol:   "AAPL",
			Side:     model.SideBuy,
			Status:   status,
			OpenedAt: openedAt,
		}
	}

	require.NoError(t, st.InsertTrade(ctx, mk("t1", base, model.StatusOpen)))
	require.NoError(t, st.InsertTrade(ctx, mk("t2", base.Add(time.Second), model.StatusClosed)))
	require.NoError(t, st.InsertTrade(ctx, mk("t3", base.Add(2*time.Second), model.StatusOpen)))
	require.NoError(t, st.InsertTrade(ctx, &model.Trade{
		ID: "other", UserID: "bob", Symbol: "AAPL", Status: model.StatusOpen, OpenedAt: base,
	}))

	all, err := st.ListTrades(ctx, "alice", false, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"t3", "t2", "t1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	open, err := st.ListTrades(ctx, "alice", true, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "t3", open[0].ID)

	limited, err := st.ListTrades(ctx, "alice", false, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStoreGetTradeScopedToUser(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.InsertTrade(ctx, &model.Trade{ID: "t1", UserID: "alice"}))

	_, err := st.GetTrade(ctx, "t1", "alice")
	require.NoError(t, err)

	_, err = st.GetTrade(ctx, "t1", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAtomicCommit(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	err := st.Atomic(ctx, func(tx Store) error {
		if err := tx.SaveAccount(ctx, &model.Account{UserID: "alice", CashBalance: decimal.NewFromInt(1)}); err != nil {
			return err
		}
		return tx.InsertTrade(ctx, &model.Trade{ID: "t1", UserID: "alice"})
	})
	require.NoError(t, err)

	_, err = st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	_, err = st.GetTrade(ctx, "t1", "alice")
	require.NoError(t, err)
}

func TestMemoryStoreAtomicRollback(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.SaveAccount(ctx, &model.Account{
		UserID: "alice", CashBalance: decimal.NewFromInt(500),
	}))

	boom := errors.New("boom")
	err := st.Atomic(ctx, func(tx Store) error {
		if err := tx.SaveAccount(ctx, &model.Account{UserID: "alice", CashBalance: decimal.Zero}); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, &model.Trade{ID: "t1", UserID: "alice"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Every write inside the failed transaction is gone.
	acct, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acct.CashBalance.Equal(decimal.NewFromInt(500)))

	_, err = st.GetTrade(ctx, "t1", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreNestedAtomic(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	err := st.Atomic(ctx, func(tx Store) error {
		return tx.Atomic(ctx, func(inner Store) error {
			return inner.SaveAccount(ctx, &model.Account{UserID: "alice"})
		})
	})
	require.NoError(t, err)

	_, err = st.GetAccount(ctx, "alice")
	require.NoError(t, err)
}

func TestMemoryStorePortfolioCopyOnReadWrite(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	p := &model.Portfolio{
		UserID: "alice",
		Holdings: []model.Position{
			{Symbol: "AAPL", Quantity: decimal.NewFromInt(10)},
		},
	}
	require.NoError(t, st.SavePortfolio(ctx, p))

	got, err := st.GetPortfolio(ctx, "alice")
	require.NoError(t, err)
	got.Holdings[0].Quantity = decimal.Zero

	again, err := st.GetPortfolio(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, again.Holdings[0].Quantity.Equal(decimal.NewFromInt(10)))
}
