package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
	"github.com/jmoiron/sqlx"
)

type PostgresStrategyStore struct {
	db *sqlx.DB
}

func NewPostgresStrategyStore(db *sqlx.DB) *PostgresStrategyStore {
	store := &PostgresStrategyStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

const strategyColumns = `
	id, name, active,
	min_price, max_price, min_edge, max_edge, min_win_rate, max_win_rate,
	min_resolved_trades, min_conviction, max_conviction, slippage_pct,
	allocation, base_bet, allocation_weight, kelly_fraction, min_bet, max_bet,
	ml_gate_enabled, ml_threshold,
	max_drawdown_pct, max_consec_losses, max_daily_spend, max_trades_per_day,
	starting_balance, current_balance, filters_json,
	COALESCE(window_start, 'epoch'::timestamptz) AS window_start,
	COALESCE(window_end, 'epoch'::timestamptz) AS window_end,
	COALESCE(last_processed_at, 'epoch'::timestamptz) AS last_processed_at`

func (s *PostgresStrategyStore) Get(ctx context.Context, id string) (*model.Strategy, error) {
	var strat model.Strategy
	err := s.db.GetContext(ctx, &strat,
		`SELECT `+strategyColumns+` FROM strategies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("strategy not found")
	}
	if err != nil {
		return nil, fmt.Errorf("strategy query failed: %w", err)
	}
	return &strat, nil
}

func (s *PostgresStrategyStore) ListActive(ctx context.Context) ([]model.Strategy, error) {
	var out []model.Strategy
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+strategyColumns+` FROM strategies WHERE active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("active strategies query failed: %w", err)
	}
	return out, nil
}

func (s *PostgresStrategyStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("strategy activate failed: %w", err)
	}
	return nil
}

// MarkProcessed advances the per-strategy watermark at the end of a
// successful pass. It never moves backwards, so a pass re-run cannot
// widen the recency window.
func (s *PostgresStrategyStore) MarkProcessed(ctx context.Context, id string, lastProcessed time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE strategies SET last_processed_at = $2
		WHERE id = $1 AND (last_processed_at IS NULL OR last_processed_at < $2)
	`, id, lastProcessed)
	if err != nil {
		return fmt.Errorf("strategy watermark update failed: %w", err)
	}
	return nil
}

func (s *PostgresStrategyStore) UpdateBalance(ctx context.Context, id string, balance float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET current_balance = $2 WHERE id = $1`, id, balance)
	if err != nil {
		return fmt.Errorf("strategy balance update failed: %w", err)
	}
	return nil
}

func (s *PostgresStrategyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS strategies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			min_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_price DOUBLE PRECISION NOT NULL DEFAULT 1,
			min_edge DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_edge DOUBLE PRECISION NOT NULL DEFAULT 0,
			min_win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			min_resolved_trades INTEGER NOT NULL DEFAULT 0,
			min_conviction DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_conviction DOUBLE PRECISION NOT NULL DEFAULT 0,
			slippage_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			allocation TEXT NOT NULL DEFAULT 'FIXED',
			base_bet DOUBLE PRECISION NOT NULL DEFAULT 0,
			allocation_weight DOUBLE PRECISION NOT NULL DEFAULT 1,
			kelly_fraction DOUBLE PRECISION NOT NULL DEFAULT 0,
			min_bet DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_bet DOUBLE PRECISION NOT NULL DEFAULT 0,
			ml_gate_enabled BOOLEAN NOT NULL DEFAULT false,
			ml_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_drawdown_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_consec_losses INTEGER NOT NULL DEFAULT 0,
			max_daily_spend DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_trades_per_day INTEGER NOT NULL DEFAULT 0,
			starting_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			filters_json TEXT NOT NULL DEFAULT '',
			window_start TIMESTAMPTZ,
			window_end TIMESTAMPTZ,
			last_processed_at TIMESTAMPTZ
		)
	`)
	return err
}
