package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/jmoiron/sqlx"
)

type PostgresPositionStore struct {
	db *sqlx.DB
}

func NewPostgresPositionStore(db *sqlx.DB) *PostgresPositionStore {
	store := &PostgresPositionStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresPositionStore) Create(ctx context.Context, p *model.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(id, strategy_id, signal_id, trader, market_id, outcome, side,
			 entry_price, size_usd, status, pnl_usd, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.StrategyID, p.SignalID, p.Trader, p.MarketID, p.Outcome, p.Side,
		p.EntryPrice, p.SizeUSD, p.Status, p.PnLUSD, p.OpenedAt)
	if err != nil {
		return fmt.Errorf("position insert failed: %w", err)
	}
	return nil
}

func (s *PostgresPositionStore) ListOpen(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, strategy_id, signal_id, trader, market_id, outcome, side,
		       entry_price, size_usd, status, pnl_usd, opened_at,
		       COALESCE(resolved_at, 'epoch'::timestamptz) AS resolved_at
		FROM positions
		WHERE status = $1
		ORDER BY opened_at
	`, model.PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("open positions query failed: %w", err)
	}
	return out, nil
}

// Settle performs the single OPEN -> terminal transition. The WHERE
// clause on status makes a concurrent second settlement a no-op.
func (s *PostgresPositionStore) Settle(ctx context.Context, id string, status model.PositionStatus, pnl float64, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET status = $2, pnl_usd = $3, resolved_at = $4
		WHERE id = $1 AND status = $5
	`, id, status, pnl, resolvedAt, model.PositionOpen)
	if err != nil {
		return fmt.Errorf("position settle failed: %w", err)
	}
	return nil
}

// OpenExposure sums the stake currently locked in OPEN positions, used
// for the effective-bankroll input to Kelly sizing.
func (s *PostgresPositionStore) OpenExposure(ctx context.Context, strategyID string) (float64, error) {
	var total float64
	err := s.db.QueryRowxContext(ctx, `
		SELECT COALESCE(SUM(size_usd), 0) FROM positions
		WHERE strategy_id = $1 AND status = $2
	`, strategyID, model.PositionOpen).Scan(&total)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("exposure query failed: %w", err)
	}
	return total, nil
}

func (s *PostgresPositionStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			strategy_id TEXT NOT NULL,
			signal_id TEXT NOT NULL,
			trader TEXT NOT NULL,
			market_id TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			size_usd DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL DEFAULT 'OPEN',
			pnl_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			opened_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			resolved_at TIMESTAMPTZ,
			UNIQUE (strategy_id, signal_id)
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS positions_open_idx ON positions (status) WHERE status = 'OPEN'`)
	return nil
}
