package model

import "time"

// PauseReason is attached to a PAUSED risk state for the operator.
type PauseReason string

const (
	PauseNone         PauseReason = ""
	PauseDrawdown     PauseReason = "MAX_DRAWDOWN"
	PauseConsecLosses PauseReason = "CONSECUTIVE_LOSSES"
	PauseDailyBudget  PauseReason = "DAILY_BUDGET"
	PauseDailyTrades  PauseReason = "DAILY_TRADE_LIMIT"
	PauseManual       PauseReason = "MANUAL"
)

type RiskStatus string

const (
	RiskActive RiskStatus = "ACTIVE"
	RiskPaused RiskStatus = "PAUSED"
)

// RiskState is the per-strategy risk ledger, updated once per settled
// position and consulted before every new one. PeakEquity only moves
// up; drawdown is measured against it.
type RiskState struct {
	StrategyID    string      `db:"strategy_id" json:"strategy_id"`
	Status        RiskStatus  `db:"status" json:"status"`
	PauseReason   PauseReason `db:"pause_reason" json:"pause_reason,omitempty"`
	CurrentEquity float64     `db:"current_equity" json:"current_equity"`
	PeakEquity    float64     `db:"peak_equity" json:"peak_equity"`
	DrawdownPct   float64     `db:"drawdown_pct" json:"drawdown_pct"`
	ConsecLosses  int         `db:"consec_losses" json:"consec_losses"`
	Wins          int         `db:"wins" json:"wins"`
	Losses        int         `db:"losses" json:"losses"`
	DailySpendUSD float64     `db:"daily_spend_usd" json:"daily_spend_usd"`
	DailyTrades   int         `db:"daily_trades" json:"daily_trades"`
	DailyDate     string      `db:"daily_date" json:"daily_date"` // UTC YYYY-MM-DD bucket
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// NewRiskState seeds the ledger from a strategy's starting balance.
func NewRiskState(strategyID string, startingBalance float64) *RiskState {
	return &RiskState{
		StrategyID:    strategyID,
		Status:        RiskActive,
		CurrentEquity: startingBalance,
		PeakEquity:    startingBalance,
	}
}

// RollDay resets the daily buckets when the UTC date has advanced.
func (r *RiskState) RollDay(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if r.DailyDate != day {
		r.DailyDate = day
		r.DailySpendUSD = 0
		r.DailyTrades = 0
	}
}
