package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/jmoiron/sqlx"
)

type PostgresRiskStore struct {
	db *sqlx.DB
}

func NewPostgresRiskStore(db *sqlx.DB) *PostgresRiskStore {
	store := &PostgresRiskStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

// Get returns (nil, nil) when no state exists yet; callers seed a fresh
// state from the strategy's starting balance.
func (s *PostgresRiskStore) Get(ctx context.Context, strategyID string) (*model.RiskState, error) {
	var state model.RiskState
	err := s.db.GetContext(ctx, &state, `
		SELECT strategy_id, status, pause_reason, current_equity, peak_equity,
		       drawdown_pct, consec_losses, wins, losses,
		       daily_spend_usd, daily_trades, daily_date, updated_at
		FROM risk_states WHERE strategy_id = $1
	`, strategyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("risk state query failed: %w", err)
	}
	return &state, nil
}

func (s *PostgresRiskStore) Save(ctx context.Context, state *model.RiskState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_states
			(strategy_id, status, pause_reason, current_equity, peak_equity,
			 drawdown_pct, consec_losses, wins, losses,
			 daily_spend_usd, daily_trades, daily_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (strategy_id)
		DO UPDATE SET status = $2, pause_reason = $3, current_equity = $4,
		              peak_equity = $5, drawdown_pct = $6, consec_losses = $7,
		              wins = $8, losses = $9, daily_spend_usd = $10,
		              daily_trades = $11, daily_date = $12, updated_at = now()
	`, state.StrategyID, state.Status, state.PauseReason, state.CurrentEquity,
		state.PeakEquity, state.DrawdownPct, state.ConsecLosses, state.Wins,
		state.Losses, state.DailySpendUSD, state.DailyTrades, state.DailyDate)
	if err != nil {
		return fmt.Errorf("risk state upsert failed: %w", err)
	}
	return nil
}

func (s *PostgresRiskStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_states (
			strategy_id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			pause_reason TEXT NOT NULL DEFAULT '',
			current_equity DOUBLE PRECISION NOT NULL DEFAULT 0,
			peak_equity DOUBLE PRECISION NOT NULL DEFAULT 0,
			drawdown_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			consec_losses INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			daily_spend_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			daily_trades INTEGER NOT NULL DEFAULT 0,
			daily_date TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}
