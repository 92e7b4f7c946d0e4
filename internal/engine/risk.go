package engine

import (
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/metrics"
)

// RiskManager is the per-strategy circuit breaker. It is consulted
// before every new position and fed every settled one. All methods
// mutate the passed state in place; persisting it is the caller's job.
type RiskManager struct{}

func NewRiskManager() *RiskManager {
	return &RiskManager{}
}

// Gate vetoes a prospective bet against the current risk state. It
// returns ReasonNone when the bet may proceed. Exceeding a daily
// budget or trade limit does not just veto — it trips the breaker, so
// the rest of the batch short-circuits on ReasonRiskPaused.
func (m *RiskManager) Gate(strat *model.Strategy, state *model.RiskState, betSize float64, now time.Time) Reason {
	state.RollDay(now)

	if state.Status == model.RiskPaused {
		return ReasonRiskPaused
	}

	if strat.MaxDailySpend > 0 && state.DailySpendUSD+betSize > strat.MaxDailySpend {
		m.pause(state, model.PauseDailyBudget, now)
		return ReasonDailyBudget
	}

	if strat.MaxTradesPerDay > 0 && state.DailyTrades+1 > strat.MaxTradesPerDay {
		m.pause(state, model.PauseDailyTrades, now)
		return ReasonDailyTradeLimit
	}

	return ReasonNone
}

// NoteOpen records a committed position against the daily buckets.
func (m *RiskManager) NoteOpen(state *model.RiskState, betSize float64, now time.Time) {
	state.RollDay(now)
	state.DailySpendUSD += betSize
	state.DailyTrades++
	state.UpdatedAt = now
}

// ApplyResult folds one settled position into the risk state: equity,
// monotonic peak, drawdown, win/loss streaks, and the ACTIVE->PAUSED
// transitions. Voided positions move no money and break no streaks.
func (m *RiskManager) ApplyResult(strat *model.Strategy, state *model.RiskState, status model.PositionStatus, pnl float64, now time.Time) {
	state.UpdatedAt = now

	if status == model.PositionVoided {
		return
	}

	state.CurrentEquity += pnl
	if state.CurrentEquity > state.PeakEquity {
		state.PeakEquity = state.CurrentEquity
	}
	if state.PeakEquity > 0 {
		state.DrawdownPct = (state.PeakEquity - state.CurrentEquity) / state.PeakEquity
	}

	if status == model.PositionWon {
		state.Wins++
		state.ConsecLosses = 0
	} else {
		state.Losses++
		state.ConsecLosses++
	}

	if state.Status != model.RiskActive {
		return
	}
	if strat.MaxDrawdownPct > 0 && state.DrawdownPct > strat.MaxDrawdownPct {
		m.pause(state, model.PauseDrawdown, now)
		return
	}
	if strat.MaxConsecLosses > 0 && state.ConsecLosses > strat.MaxConsecLosses {
		m.pause(state, model.PauseConsecLosses, now)
	}
}

// Resume is the manual PAUSED->ACTIVE transition. Drawdown history is
// deliberately kept: peak equity does not reset, so a strategy that
// resumes inside its drawdown window pauses again on the next loss.
func (m *RiskManager) Resume(state *model.RiskState, now time.Time) {
	state.Status = model.RiskActive
	state.PauseReason = model.PauseNone
	state.UpdatedAt = now
}

// PauseManual is the operator-initiated transition.
func (m *RiskManager) PauseManual(state *model.RiskState, now time.Time) {
	m.pause(state, model.PauseManual, now)
}

func (m *RiskManager) pause(state *model.RiskState, reason model.PauseReason, now time.Time) {
	if state.Status == model.RiskPaused {
		return
	}
	state.Status = model.RiskPaused
	state.PauseReason = reason
	state.UpdatedAt = now
	metrics.RiskPauses.WithLabelValues(state.StrategyID, string(reason)).Inc()
}
