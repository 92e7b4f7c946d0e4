package engine

import (
	"math"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
)

// maxEntryPrice caps the slippage-adjusted price just below 1.0 so a
// winning share always pays out something.
const maxEntryPrice = 0.9999

// EvalInput bundles everything Evaluate needs. Market and MLScore are
// lazy so the evaluator can short-circuit before paying for an
// external lookup: a stale signal never touches the metadata source,
// and only ML-gated strategies ever call the scorer.
type EvalInput struct {
	Signal   model.Signal
	Strategy model.Strategy
	Filters  *model.ExtendedFilters
	Now      time.Time
	Bankroll float64 // effective bankroll: balance minus open exposure

	Market  func() (*model.MarketSnapshot, error)
	MLScore func() (float64, error)
}

// Acceptance is the evaluator's positive outcome; BetSize is final,
// clamped and rounded.
type Acceptance struct {
	PriceWithSlippage float64
	Edge              float64
	MLProb            *float64
	BetSize           float64
}

// Evaluate runs the ordered eligibility pipeline. Checks short-circuit:
// the first failing check's reason is reported, which keeps reject
// diagnostics stable across releases. Returns (nil, reason) on reject.
func Evaluate(in EvalInput) (*Acceptance, Reason) {
	sig := &in.Signal
	strat := &in.Strategy

	// 1. Recency: strictly newer than the strategy's watermark.
	if !sig.Timestamp.After(strat.LastProcessedAt) {
		return nil, ReasonStaleSignal
	}

	// 2. Market lifecycle.
	mkt, err := in.Market()
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, ReasonMarketNotFound
		}
		return nil, ReasonMarketError
	}
	if mkt == nil {
		return nil, ReasonMarketNotFound
	}
	if mkt.Resolved {
		return nil, ReasonMarketResolved
	}
	if mkt.Closed {
		return nil, ReasonMarketClosed
	}
	if !mkt.EndTime.IsZero() && !sig.Timestamp.Before(mkt.EndTime) {
		return nil, ReasonMarketEnded
	}

	// 3. Live-only strategies wait for the underlying event to start.
	if in.Filters != nil && in.Filters.TradeLiveOnly {
		if mkt.LiveStartTime.IsZero() || in.Now.Before(mkt.LiveStartTime) {
			return nil, ReasonMarketNotLive
		}
	}

	// 4. Target-trader allow-list.
	if in.Filters.HasTargetTraders() && !in.Filters.AllowsTrader(sig.Trader) {
		return nil, ReasonTraderNotTarget
	}

	// 5. Slippage-adjusted entry and edge.
	priceWithSlippage := math.Min(maxEntryPrice, sig.Price*(1+strat.SlippagePct))
	edge := sig.TraderStats.WinRate - priceWithSlippage

	// 6. Price band, on the trader's observed entry price.
	if sig.Price < strat.MinPrice || sig.Price > strat.MaxPrice {
		return nil, ReasonPriceOutOfBand
	}

	// 7. Trader win rate.
	if sig.TraderStats.WinRate < strat.MinWinRate {
		return nil, ReasonWinRateBelowMin
	}
	if strat.MaxWinRate > 0 && sig.TraderStats.WinRate > strat.MaxWinRate {
		return nil, ReasonWinRateAboveMax
	}

	// 8. Edge.
	if edge < strat.MinEdge {
		return nil, ReasonEdgeBelowMin
	}
	if strat.MaxEdge > 0 && edge > strat.MaxEdge {
		return nil, ReasonEdgeAboveMax
	}

	// 9. Trader history depth and stat confidence.
	if sig.TraderStats.ResolvedCount < strat.MinResolvedTrades {
		return nil, ReasonInsufficientHist
	}
	if !in.Filters.MeetsConfidence(sig.TraderStats.Confidence) {
		return nil, ReasonConfidenceLow
	}

	// 10. Conviction.
	conviction := sig.Conviction()
	if conviction < strat.MinConviction {
		return nil, ReasonConvictionLow
	}
	if strat.MaxConviction > 0 && conviction > strat.MaxConviction {
		return nil, ReasonConvictionHigh
	}

	// 11. Category allow-list against the normalized title.
	if in.Filters != nil && !in.Filters.MatchesCategory(mkt.NormalizedTitle()) {
		return nil, ReasonCategoryMismatch
	}

	// 12. Original notional bounds.
	if in.Filters != nil {
		if in.Filters.MinTradeSize > 0 && sig.SizeUSD < in.Filters.MinTradeSize {
			return nil, ReasonTradeSizeBounds
		}
		if in.Filters.MaxTradeSize > 0 && sig.SizeUSD > in.Filters.MaxTradeSize {
			return nil, ReasonTradeSizeBounds
		}
	}

	// 13. ML gate. An unknown score is a hard reject for a gated
	// strategy, never an implicit pass.
	var mlProb *float64
	if strat.MLGateEnabled {
		if in.MLScore == nil {
			return nil, ReasonMLUnavailable
		}
		prob, err := in.MLScore()
		if err != nil {
			return nil, ReasonMLUnavailable
		}
		if prob < strat.MLThreshold {
			return nil, ReasonMLBelowThreshold
		}
		mlProb = &prob
	}

	// 14. Size the bet; available cash must cover at least the minimum.
	if in.Bankroll < strat.MinBet {
		return nil, ReasonInsufficientCash
	}
	bet := ComputeBetSize(strat, SizingInput{
		WinRate:    sig.TraderStats.WinRate,
		EntryPrice: priceWithSlippage,
		Edge:       edge,
		Conviction: conviction,
		Bankroll:   in.Bankroll,
		MLProb:     mlProb,
	})
	if bet > in.Bankroll {
		bet = roundUSD(in.Bankroll)
	}
	if bet < strat.MinBet {
		return nil, ReasonInsufficientCash
	}

	return &Acceptance{
		PriceWithSlippage: priceWithSlippage,
		Edge:              edge,
		MLProb:            mlProb,
		BetSize:           bet,
	}, ReasonNone
}
