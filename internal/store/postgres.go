package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// pgxQuerier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so the same query code runs inside and outside transactions.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool // nil inside a transaction
	q    pgxQuerier
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id      TEXT PRIMARY KEY,
			cash_balance NUMERIC NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS assets (
			symbol             TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			type               TEXT NOT NULL,
			current_price      NUMERIC NOT NULL,
			change_24h         NUMERIC NOT NULL DEFAULT 0,
			change_percent_24h NUMERIC NOT NULL DEFAULT 0,
			high_24h           NUMERIC NOT NULL DEFAULT 0,
			low_24h            NUMERIC NOT NULL DEFAULT 0,
			volume_24h         NUMERIC NOT NULL DEFAULT 0,
			active             BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at         TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS trades (
			id                   TEXT PRIMARY KEY,
			user_id              TEXT NOT NULL,
			symbol               TEXT NOT NULL,
			side                 TEXT NOT NULL,
			order_kind           TEXT NOT NULL,
			quantity             NUMERIC NOT NULL,
			entry_price          NUMERIC NOT NULL,
			notional             NUMERIC NOT NULL,
			status               TEXT NOT NULL,
			opened_at            TIMESTAMPTZ NOT NULL,
			closed_at            TIMESTAMPTZ,
			exit_price           NUMERIC NOT NULL DEFAULT 0,
			realized_pnl         NUMERIC NOT NULL DEFAULT 0,
			realized_pnl_percent NUMERIC NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_trades_user_status ON trades (user_id, status);
		CREATE INDEX IF NOT EXISTS idx_trades_user_opened ON trades (user_id, opened_at DESC);
		CREATE TABLE IF NOT EXISTS portfolios (
			user_id                      TEXT PRIMARY KEY,
			total_market_value           NUMERIC NOT NULL DEFAULT 0,
			total_unrealized_pnl         NUMERIC NOT NULL DEFAULT 0,
			total_unrealized_pnl_percent NUMERIC NOT NULL DEFAULT 0,
			last_updated                 TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS positions (
			user_id                TEXT NOT NULL,
			symbol                 TEXT NOT NULL,
			quantity               NUMERIC NOT NULL,
			average_cost           NUMERIC NOT NULL,
			current_price          NUMERIC NOT NULL DEFAULT 0,
			market_value           NUMERIC NOT NULL DEFAULT 0,
			unrealized_pnl         NUMERIC NOT NULL DEFAULT 0,
			unrealized_pnl_percent NUMERIC NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, symbol)
		);
	`)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	var balance string

	err := s.q.QueryRow(ctx,
		`SELECT user_id, cash_balance::TEXT, created_at, updated_at
		 FROM accounts WHERE user_id = $1`, userID).
		Scan(&a.UserID, &balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}

	a.CashBalance, _ = decimal.NewFromString(balance)
	return &a, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a *model.Account) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO accounts (user_id, cash_balance, created_at, updated_at)
		 VALUES ($1, $2::NUMERIC, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET cash_balance = EXCLUDED.cash_balance, updated_at = EXCLUDED.updated_at`,
		a.UserID, a.CashBalance.String(), a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpsertAsset(ctx context.Context, a *model.Asset) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO assets (symbol, name, type, current_price, change_24h, change_percent_24h,
		                     high_24h, low_24h, volume_24h, active, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)
		 ON CONFLICT (symbol) DO UPDATE
		 SET name = EXCLUDED.name, type = EXCLUDED.type,
		     current_price = EXCLUDED.current_price,
		     change_24h = EXCLUDED.change_24h, change_percent_24h = EXCLUDED.change_percent_24h,
		     high_24h = EXCLUDED.high_24h, low_24h = EXCLUDED.low_24h,
		     volume_24h = EXCLUDED.volume_24h,
		     active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`,
		a.Symbol, a.Name, a.Type,
		a.CurrentPrice.String(), a.Change24h.String(), a.ChangePercent24h.String(),
		a.High24h.String(), a.Low24h.String(), a.Volume24h.String(),
		a.Active, a.UpdatedAt,
	)
	return err
}

const assetColumns = `symbol, name, type,
       current_price::TEXT, change_24h::TEXT, change_percent_24h::TEXT,
       high_24h::TEXT, low_24h::TEXT, volume_24h::TEXT,
       active, updated_at`

func scanAsset(row pgx.Row) (*model.Asset, error) {
	var a model.Asset
	var price, chg, chgPct, high, low, vol string

	err := row.Scan(&a.Symbol, &a.Name, &a.Type,
		&price, &chg, &chgPct, &high, &low, &vol,
		&a.Active, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.CurrentPrice, _ = decimal.NewFromString(price)
	a.Change24h, _ = decimal.NewFromString(chg)
	a.ChangePercent24h, _ = decimal.NewFromString(chgPct)
	a.High24h, _ = decimal.NewFromString(high)
	a.Low24h, _ = decimal.NewFromString(low)
	a.Volume24h, _ = decimal.NewFromString(vol)
	return &a, nil
}

func (s *PostgresStore) GetAsset(ctx context.Context, symbol string) (*model.Asset, error) {
	a, err := scanAsset(s.q.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE symbol = $1 AND active`, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", symbol, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE active ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO trades (id, user_id, symbol, side, order_kind, quantity, entry_price,
		                     notional, status, opened_at, closed_at, exit_price,
		                     realized_pnl, realized_pnl_percent)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11,
		         $12::NUMERIC, $13::NUMERIC, $14::NUMERIC)`,
		t.ID, t.UserID, t.Symbol, t.Side, t.OrderKind,
		t.Quantity.String(), t.EntryPrice.String(), t.Notional.String(),
		t.Status, t.OpenedAt, t.ClosedAt,
		t.ExitPrice.String(), t.RealizedPnL.String(), t.RealizedPnLPercent.String(),
	)
	return err
}

func (s *PostgresStore) UpdateTrade(ctx context.Context, t *model.Trade) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE trades
		 SET status = $2, closed_at = $3, exit_price = $4::NUMERIC,
		     realized_pnl = $5::NUMERIC, realized_pnl_percent = $6::NUMERIC
		 WHERE id = $1`,
		t.ID, t.Status, t.ClosedAt,
		t.ExitPrice.String(), t.RealizedPnL.String(), t.RealizedPnLPercent.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

const tradeColumns = `id, user_id, symbol, side, order_kind,
       quantity::TEXT, entry_price::TEXT, notional::TEXT,
       status, opened_at, closed_at,
       exit_price::TEXT, realized_pnl::TEXT, realized_pnl_percent::TEXT`

func scanTrade(row pgx.Row) (*model.Trade, error) {
	var t model.Trade
	var qty, entry, notional, exit, pnl, pnlPct string

	err := row.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.OrderKind,
		&qty, &entry, &notional,
		&t.Status, &t.OpenedAt, &t.ClosedAt,
		&exit, &pnl, &pnlPct)
	if err != nil {
		return nil, err
	}

	t.Quantity, _ = decimal.NewFromString(qty)
	t.EntryPrice, _ = decimal.NewFromString(entry)
	t.Notional, _ = decimal.NewFromString(notional)
	t.ExitPrice, _ = decimal.NewFromString(exit)
	t.RealizedPnL, _ = decimal.NewFromString(pnl)
	t.RealizedPnLPercent, _ = decimal.NewFromString(pnlPct)
	return &t, nil
}

func (s *PostgresStore) GetTrade(ctx context.Context, id, userID string) (*model.Trade, error) {
	t, err := scanTrade(s.q.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTrades(ctx context.Context, userID string, openOnly bool, limit int) ([]model.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE user_id = $1`
	if openOnly {
		query += ` AND status = 'OPEN'`
	}
	query += ` ORDER BY opened_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	var p model.Portfolio
	var total, pnl, pnlPct string

	err := s.q.QueryRow(ctx,
		`SELECT user_id, total_market_value::TEXT, total_unrealized_pnl::TEXT,
		        total_unrealized_pnl_percent::TEXT, last_updated
		 FROM portfolios WHERE user_id = $1`, userID).
		Scan(&p.UserID, &total, &pnl, &pnlPct, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio %s: %w", userID, err)
	}

	p.TotalMarketValue, _ = decimal.NewFromString(total)
	p.TotalUnrealizedPnL, _ = decimal.NewFromString(pnl)
	p.TotalUnrealizedPnLPercent, _ = decimal.NewFromString(pnlPct)

	rows, err := s.q.Query(ctx,
		`SELECT symbol, quantity::TEXT, average_cost::TEXT, current_price::TEXT,
		        market_value::TEXT, unrealized_pnl::TEXT, unrealized_pnl_percent::TEXT
		 FROM positions WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pos model.Position
		var qty, avg, cur, mv, upnl, upnlPct string
		if err := rows.Scan(&pos.Symbol, &qty, &avg, &cur, &mv, &upnl, &upnlPct); err != nil {
			return nil, err
		}
		pos.Quantity, _ = decimal.NewFromString(qty)
		pos.AverageCost, _ = decimal.NewFromString(avg)
		pos.CurrentPrice, _ = decimal.NewFromString(cur)
		pos.MarketValue, _ = decimal.NewFromString(mv)
		pos.UnrealizedPnL, _ = decimal.NewFromString(upnl)
		pos.UnrealizedPnLPercent, _ = decimal.NewFromString(upnlPct)
		p.Holdings = append(p.Holdings, pos)
	}
	return &p, rows.Err()
}

// SavePortfolio replaces the portfolio row and all position rows for the
// user. Called inside Atomic by the ledger engine, so the replace is not
// observable mid-flight.
func (s *PostgresStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO portfolios (user_id, total_market_value, total_unrealized_pnl,
		                         total_unrealized_pnl_percent, last_updated)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET total_market_value = EXCLUDED.total_market_value,
		     total_unrealized_pnl = EXCLUDED.total_unrealized_pnl,
		     total_unrealized_pnl_percent = EXCLUDED.total_unrealized_pnl_percent,
		     last_updated = EXCLUDED.last_updated`,
		p.UserID, p.TotalMarketValue.String(), p.TotalUnrealizedPnL.String(),
		p.TotalUnrealizedPnLPercent.String(), p.LastUpdated,
	)
	if err != nil {
		return err
	}

	if _, err := s.q.Exec(ctx, `DELETE FROM positions WHERE user_id = $1`, p.UserID); err != nil {
		return err
	}

	for _, pos := range p.Holdings {
		_, err := s.q.Exec(ctx,
			`INSERT INTO positions (user_id, symbol, quantity, average_cost, current_price,
			                        market_value, unrealized_pnl, unrealized_pnl_percent)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC)`,
			p.UserID, pos.Symbol,
			pos.Quantity.String(), pos.AverageCost.String(), pos.CurrentPrice.String(),
			pos.MarketValue.String(), pos.UnrealizedPnL.String(), pos.UnrealizedPnLPercent.String(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Atomic runs fn inside a database transaction. Nested calls reuse the
// enclosing transaction.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
