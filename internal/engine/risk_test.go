package engine

import (
	"testing"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var riskNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRiskManager_DrawdownPause(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1", MaxDrawdownPct: 0.20}
	state := model.NewRiskState("s1", 1000)

	// One big loss: equity 750, drawdown 25% > 20%.
	rm.ApplyResult(strat, state, model.PositionLost, -250, riskNow)

	assert.Equal(t, model.RiskPaused, state.Status)
	assert.Equal(t, model.PauseDrawdown, state.PauseReason)
	assert.InDelta(t, 0.25, state.DrawdownPct, 1e-9)
	assert.Equal(t, ReasonRiskPaused, rm.Gate(strat, state, 5, riskNow))
}

func TestRiskManager_PeakEquityMonotonic(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1"}
	state := model.NewRiskState("s1", 1000)

	rm.ApplyResult(strat, state, model.PositionWon, 500, riskNow)
	assert.Equal(t, 1500.0, state.PeakEquity)

	rm.ApplyResult(strat, state, model.PositionLost, -300, riskNow)
	assert.Equal(t, 1500.0, state.PeakEquity, "peak never decreases")
	assert.Equal(t, 1200.0, state.CurrentEquity)
	assert.InDelta(t, 0.2, state.DrawdownPct, 1e-9)
}

func TestRiskManager_ConsecutiveLosses(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1", MaxConsecLosses: 3}
	state := model.NewRiskState("s1", 1000)

	for i := 0; i < 3; i++ {
		rm.ApplyResult(strat, state, model.PositionLost, -10, riskNow)
	}
	require.Equal(t, model.RiskActive, state.Status)
	assert.Equal(t, 3, state.ConsecLosses)

	rm.ApplyResult(strat, state, model.PositionLost, -10, riskNow)
	assert.Equal(t, model.RiskPaused, state.Status)
	assert.Equal(t, model.PauseConsecLosses, state.PauseReason)
}

func TestRiskManager_WinResetsStreak(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1", MaxConsecLosses: 3}
	state := model.NewRiskState("s1", 1000)

	rm.ApplyResult(strat, state, model.PositionLost, -10, riskNow)
	rm.ApplyResult(strat, state, model.PositionLost, -10, riskNow)
	rm.ApplyResult(strat, state, model.PositionWon, 30, riskNow)

	assert.Equal(t, 0, state.ConsecLosses)
	assert.Equal(t, 1, state.Wins)
	assert.Equal(t, 2, state.Losses)
}

func TestRiskManager_VoidedMovesNothing(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1"}
	state := model.NewRiskState("s1", 1000)
	state.ConsecLosses = 2

	rm.ApplyResult(strat, state, model.PositionVoided, 0, riskNow)

	assert.Equal(t, 1000.0, state.CurrentEquity)
	assert.Equal(t, 2, state.ConsecLosses, "void breaks no streaks")
	assert.Equal(t, 0, state.Wins)
	assert.Equal(t, 0, state.Losses)
}

func TestRiskManager_DailyBudgetTripsBreaker(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1", MaxDailySpend: 100}
	state := model.NewRiskState("s1", 1000)

	assert.Equal(t, ReasonNone, rm.Gate(strat, state, 60, riskNow))
	rm.NoteOpen(state, 60, riskNow)

	reason := rm.Gate(strat, state, 60, riskNow)
	assert.Equal(t, ReasonDailyBudget, reason)
	assert.Equal(t, model.RiskPaused, state.Status)
	assert.Equal(t, model.PauseDailyBudget, state.PauseReason)
}

func TestRiskManager_DailyTradeLimit(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1", MaxTradesPerDay: 2}
	state := model.NewRiskState("s1", 1000)

	rm.NoteOpen(state, 5, riskNow)
	rm.NoteOpen(state, 5, riskNow)

	assert.Equal(t, ReasonDailyTradeLimit, rm.Gate(strat, state, 5, riskNow))
	assert.Equal(t, model.PauseDailyTrades, state.PauseReason)
}

func TestRiskManager_DailyBucketsRoll(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1", MaxDailySpend: 100}
	state := model.NewRiskState("s1", 1000)

	rm.NoteOpen(state, 90, riskNow)
	assert.Equal(t, 90.0, state.DailySpendUSD)

	nextDay := riskNow.Add(24 * time.Hour)
	assert.Equal(t, ReasonNone, rm.Gate(strat, state, 90, nextDay))
	assert.Equal(t, 0.0, state.DailySpendUSD)
}

func TestRiskManager_ResumeKeepsDrawdownHistory(t *testing.T) {
	rm := NewRiskManager()
	strat := &model.Strategy{ID: "s1", MaxDrawdownPct: 0.20}
	state := model.NewRiskState("s1", 1000)

	rm.ApplyResult(strat, state, model.PositionLost, -250, riskNow)
	require.Equal(t, model.RiskPaused, state.Status)

	rm.Resume(state, riskNow)
	assert.Equal(t, model.RiskActive, state.Status)
	assert.Equal(t, model.PauseNone, state.PauseReason)
	assert.Equal(t, 1000.0, state.PeakEquity, "resume does not reset the peak")

	// Still inside the drawdown window: the next loss pauses again.
	rm.ApplyResult(strat, state, model.PositionLost, -10, riskNow)
	assert.Equal(t, model.RiskPaused, state.Status)
}

func TestRiskManager_ManualPause(t *testing.T) {
	rm := NewRiskManager()
	state := model.NewRiskState("s1", 1000)

	rm.PauseManual(state, riskNow)
	assert.Equal(t, model.RiskPaused, state.Status)
	assert.Equal(t, model.PauseManual, state.PauseReason)
}
