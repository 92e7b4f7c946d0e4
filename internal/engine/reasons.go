package engine

// Reason is a stable reject code emitted by the eligibility pipeline.
// Rejections are expected control flow, used for diagnostics and
// backtest analysis; they are never errors. Codes are part of the
// observability contract and must not be renamed casually.
type Reason string

const (
	ReasonNone Reason = ""

	// Ordered eligibility checks.
	ReasonStaleSignal      Reason = "stale_signal"
	ReasonMarketNotFound   Reason = "market_not_found"
	ReasonMarketResolved   Reason = "market_resolved"
	ReasonMarketClosed     Reason = "market_closed"
	ReasonMarketEnded      Reason = "market_ended"
	ReasonMarketNotLive    Reason = "market_not_live"
	ReasonTraderNotTarget  Reason = "trader_not_targeted"
	ReasonPriceOutOfBand   Reason = "price_out_of_band"
	ReasonWinRateBelowMin  Reason = "win_rate_below_min"
	ReasonWinRateAboveMax  Reason = "win_rate_above_max"
	ReasonEdgeBelowMin     Reason = "edge_below_min"
	ReasonEdgeAboveMax     Reason = "edge_above_max"
	ReasonInsufficientHist Reason = "insufficient_history"
	ReasonConfidenceLow    Reason = "confidence_below_min"
	ReasonConvictionLow    Reason = "conviction_below_min"
	ReasonConvictionHigh   Reason = "conviction_above_max"
	ReasonCategoryMismatch Reason = "category_mismatch"
	ReasonTradeSizeBounds  Reason = "trade_size_out_of_bounds"
	ReasonMLUnavailable    Reason = "ml_unavailable"
	ReasonMLBelowThreshold Reason = "ml_below_threshold"
	ReasonInsufficientCash Reason = "insufficient_funds"

	// Risk-manager vetoes applied after eligibility.
	ReasonRiskPaused      Reason = "risk_paused"
	ReasonDailyBudget     Reason = "daily_budget_exceeded"
	ReasonDailyTradeLimit Reason = "daily_trade_limit"

	// Operational skips.
	ReasonDuplicate      Reason = "duplicate_signal"
	ReasonMarketError    Reason = "market_lookup_failed"
	ReasonLedgerError    Reason = "ledger_write_failed"
)
