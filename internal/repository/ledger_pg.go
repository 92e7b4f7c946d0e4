package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresLedger is the durable dedup guard. The primary key on
// (strategy_id, signal_id) is what enforces at-most-one position per
// pair; Record is a single INSERT ... ON CONFLICT DO NOTHING so
// concurrent passes cannot both win.
type PostgresLedger struct {
	db *sqlx.DB
}

func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	ledger := &PostgresLedger{db: db}
	_ = ledger.ensureSchema(context.Background())
	return ledger
}

// Record claims the (strategy, signal) pair. Returns true if this call
// claimed it, false if another pass already had. Errors are surfaced,
// never swallowed: a failed write means the guarantee is unknown and
// the caller must not open a position.
func (l *PostgresLedger) Record(ctx context.Context, strategyID, signalID string) (bool, error) {
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO trade_ledger (strategy_id, signal_id, seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (strategy_id, signal_id) DO NOTHING
	`, strategyID, signalID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("ledger write failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger write failed: %w", err)
	}
	return rows > 0, nil
}

func (l *PostgresLedger) ensureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trade_ledger (
			strategy_id TEXT NOT NULL,
			signal_id TEXT NOT NULL,
			seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (strategy_id, signal_id)
		)
	`)
	return err
}

func (l *PostgresLedger) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := l.db.ExecContext(ctx, `DELETE FROM trade_ledger WHERE seen_at < $1`, cutoff)
	return err
}
