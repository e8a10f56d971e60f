// Package persistence is the pgx-backed live.PersistenceSink
// implementation for orders, fills, positions, and account snapshots.
// Every write is idempotent, keyed by id (account snapshots by
// timestamp), so replays and at-least-once bus delivery never duplicate
// rows.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/live"
)

// Store is a pgxpool-backed PersistenceSink.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects a pgxpool to dsn and returns a Store. Callers own the
// pool's lifetime via Close.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, coreerrors.Config("connect to postgres dsn", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, coreerrors.Config("ping postgres", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate creates the schema if it does not already exist. It is
// intentionally idempotent so it can run at process start every time.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return coreerrors.Config("run persistence schema migration", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	external_id TEXT,
	market TEXT NOT NULL,
	mode TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	filled_quantity NUMERIC NOT NULL,
	price NUMERIC,
	stop_price NUMERIC,
	status TEXT NOT NULL,
	strategy_name TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	id UUID PRIMARY KEY,
	order_id UUID NOT NULL,
	market TEXT NOT NULL,
	mode TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	price NUMERIC NOT NULL,
	commission NUMERIC NOT NULL,
	commission_asset TEXT,
	slippage_bps NUMERIC,
	latency_ms BIGINT,
	"timestamp" TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id UUID PRIMARY KEY,
	market TEXT NOT NULL,
	mode TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	avg_entry_price NUMERIC NOT NULL,
	unrealized_pnl NUMERIC NOT NULL,
	realized_pnl NUMERIC NOT NULL,
	strategy_name TEXT,
	opened_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS account_snapshots (
	"timestamp" TIMESTAMPTZ PRIMARY KEY,
	market TEXT NOT NULL,
	mode TEXT NOT NULL,
	balance NUMERIC NOT NULL,
	equity NUMERIC NOT NULL,
	unrealized_pnl NUMERIC NOT NULL,
	realized_pnl NUMERIC NOT NULL,
	daily_pnl NUMERIC NOT NULL,
	drawdown_pct NUMERIC NOT NULL,
	peak_equity NUMERIC NOT NULL
);
`

func (s *Store) UpsertOrder(ctx context.Context, order domain.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, external_id, market, mode, symbol, side, order_type, quantity,
			filled_quantity, price, stop_price, status, strategy_name, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			filled_quantity = EXCLUDED.filled_quantity,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = now()
	`,
		order.ID, order.ExternalID, string(order.Market), string(order.Mode), order.Symbol,
		string(order.Side), string(order.Type), order.Quantity, order.FilledQuantity,
		order.Price, order.StopPrice, string(order.Status), order.StrategyName, order.ErrorMessage,
	)
	if err != nil {
		return coreerrors.Order(fmt.Sprintf("upsert order %s", order.ID), err)
	}
	return nil
}

func (s *Store) UpsertFill(ctx context.Context, fill domain.Fill) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fills (id, order_id, market, mode, symbol, side, quantity, price, commission,
			commission_asset, slippage_bps, latency_ms, "timestamp")
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO NOTHING
	`,
		fill.ID, fill.OrderID, string(fill.Market), string(fill.Mode), fill.Symbol, string(fill.Side),
		fill.Quantity, fill.Price, fill.Commission, fill.CommissionAsset, fill.SlippageBps,
		fill.LatencyMs, fill.Timestamp,
	)
	if err != nil {
		return coreerrors.Order(fmt.Sprintf("upsert fill %s", fill.ID), err)
	}
	return nil
}

func (s *Store) UpsertPosition(ctx context.Context, position domain.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (id, market, mode, symbol, side, quantity, avg_entry_price,
			unrealized_pnl, realized_pnl, strategy_name, opened_at, updated_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl = EXCLUDED.realized_pnl,
			updated_at = EXCLUDED.updated_at,
			closed_at = EXCLUDED.closed_at
	`,
		position.ID, string(position.Market), string(position.Mode), position.Symbol, string(position.Side),
		position.Quantity, position.AvgEntryPrice, position.UnrealizedPnL, position.RealizedPnL,
		position.StrategyName, position.OpenedAt, position.UpdatedAt, position.ClosedAt,
	)
	if err != nil {
		return coreerrors.Order(fmt.Sprintf("upsert position %s", position.ID), err)
	}
	return nil
}

func (s *Store) RecordSnapshot(ctx context.Context, snapshot domain.AccountSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_snapshots ("timestamp", market, mode, balance, equity, unrealized_pnl,
			realized_pnl, daily_pnl, drawdown_pct, peak_equity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT ("timestamp") DO NOTHING
	`,
		snapshot.Timestamp, string(snapshot.Market), string(snapshot.Mode), snapshot.Balance,
		snapshot.Equity, snapshot.UnrealizedPnL, snapshot.RealizedPnL, snapshot.DailyPnL,
		snapshot.DrawdownPct, snapshot.PeakEquity,
	)
	if err != nil {
		return coreerrors.Config("record account snapshot", err)
	}
	return nil
}

var _ live.PersistenceSink = (*Store)(nil)
