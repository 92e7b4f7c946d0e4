package model

import "time"

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionWon    PositionStatus = "WON"
	PositionLost   PositionStatus = "LOST"
	PositionVoided PositionStatus = "VOIDED"
)

// Position is one accepted signal for one strategy. Exactly one row
// exists per (strategy, signal) pair; it transitions once from OPEN to
// a terminal state and is otherwise immutable.
type Position struct {
	ID         string         `db:"id" json:"id"`
	StrategyID string         `db:"strategy_id" json:"strategy_id"`
	SignalID   string         `db:"signal_id" json:"signal_id"`
	Trader     string         `db:"trader" json:"trader"`
	MarketID   string         `db:"market_id" json:"market_id"`
	Outcome    string         `db:"outcome" json:"outcome"`
	Side       Side           `db:"side" json:"side"`
	EntryPrice float64        `db:"entry_price" json:"entry_price"`
	SizeUSD    float64        `db:"size_usd" json:"size_usd"`
	Status     PositionStatus `db:"status" json:"status"`
	PnLUSD     float64        `db:"pnl_usd" json:"pnl_usd"`
	OpenedAt   time.Time      `db:"opened_at" json:"opened_at"`
	ResolvedAt time.Time      `db:"resolved_at" json:"resolved_at"`
}

// Terminal reports whether the position has left OPEN.
func (p *Position) Terminal() bool {
	return p.Status != PositionOpen
}
