package engine

import (
	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/shopspring/decimal"
)

const (
	edgeScaleFactor = 5.0

	// kellyPriceCeiling: above this entry price the Kelly denominator
	// (1 - price) is too small to trust; fall back to the minimum bet.
	kellyPriceCeiling = 0.99

	defaultMLProb = 0.55
)

// SizingInput carries the per-signal quantities the allocation
// formulas draw on. Bankroll is the strategy's effective bankroll:
// starting balance plus realized PnL minus open exposure, computed
// fresh for the current pass.
type SizingInput struct {
	WinRate    float64
	EntryPrice float64
	Edge       float64
	Conviction float64
	Bankroll   float64
	MLProb     *float64
}

// ComputeBetSize dispatches to the strategy's allocation method and
// returns a bet clamped to [MinBet, MaxBet], rounded to cents. Each
// formula is pure and independently testable.
func ComputeBetSize(strat *model.Strategy, in SizingInput) float64 {
	var bet float64
	switch strat.Allocation {
	case model.AllocKelly:
		bet = kellyBet(strat, in)
	case model.AllocEdgeScaled:
		bet = strat.BaseBet * (1 + in.Edge*edgeScaleFactor)
	case model.AllocTiered:
		bet = strat.BaseBet * tierMultiplier(in.Edge)
	case model.AllocConviction:
		bet = strat.BaseBet * clamp(in.Conviction, 0.5, 3.0)
	case model.AllocMLScaled:
		prob := defaultMLProb
		if in.MLProb != nil {
			prob = *in.MLProb
		}
		bet = strat.BaseBet * clamp(0.5+(prob-0.5), 0.5, 2.0)
	case model.AllocConfidence:
		bet = strat.BaseBet * (0.5 + confidenceScore(in)*1.5)
	default: // FIXED
		weight := strat.AllocationWeight
		if weight <= 0 {
			weight = 1
		}
		bet = strat.BaseBet * weight
	}

	bet = clamp(bet, strat.MinBet, strat.MaxBet)
	return roundUSD(bet)
}

func kellyBet(strat *model.Strategy, in SizingInput) float64 {
	if in.EntryPrice >= kellyPriceCeiling {
		return strat.MinBet
	}
	fullKelly := in.Edge / (1 - in.EntryPrice)
	return in.Bankroll * fullKelly * strat.KellyFraction
}

// tierMultiplier is the step function on edge for TIERED allocation.
func tierMultiplier(edge float64) float64 {
	switch {
	case edge >= 0.15:
		return 2.0
	case edge >= 0.10:
		return 1.5
	case edge >= 0.05:
		return 1.0
	default:
		return 0.5
	}
}

// confidenceScore blends normalized edge, conviction and win rate into
// a [0,1] composite (weights 0.4 / 0.3 / 0.3).
func confidenceScore(in SizingInput) float64 {
	edgeNorm := clamp(in.Edge/0.25, 0, 1)
	convNorm := clamp(in.Conviction/3.0, 0, 1)
	wrNorm := clamp(in.WinRate, 0, 1)
	return edgeNorm*0.4 + convNorm*0.3 + wrNorm*0.3
}

func clamp(v, lo, hi float64) float64 {
	if hi > 0 && v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}

// roundUSD rounds to currency precision (cents).
func roundUSD(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
