package model

import (
	"encoding/json"
	"strings"
	"time"
)

// AllocationMethod selects the position-sizing formula for a strategy.
type AllocationMethod string

const (
	AllocFixed      AllocationMethod = "FIXED"
	AllocKelly      AllocationMethod = "KELLY"
	AllocEdgeScaled AllocationMethod = "EDGE_SCALED"
	AllocTiered     AllocationMethod = "TIERED"
	AllocConviction AllocationMethod = "CONVICTION"
	AllocMLScaled   AllocationMethod = "ML_SCALED"
	AllocConfidence AllocationMethod = "CONFIDENCE"
)

// ExtendedFilters is the structured filter block stored alongside a
// strategy. It replaces the legacy JSON-in-notes hybrid field; a parse
// failure degrades to no extended filters.
type ExtendedFilters struct {
	TargetTraders []string `json:"target_traders,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	MinTradeSize  float64  `json:"min_trade_size,omitempty"`
	MaxTradeSize  float64  `json:"max_trade_size,omitempty"`
	TradeLiveOnly bool     `json:"trade_live_only,omitempty"`
	MinConfidence string   `json:"min_confidence,omitempty"` // HIGH / MEDIUM / LOW / INSUFFICIENT
}

// HasTargetTraders reports whether a trader allow-list is configured.
func (f *ExtendedFilters) HasTargetTraders() bool {
	return f != nil && len(f.TargetTraders) > 0
}

// AllowsTrader checks the target-trader allow-list (case-insensitive
// wallet comparison).
func (f *ExtendedFilters) AllowsTrader(wallet string) bool {
	if !f.HasTargetTraders() {
		return true
	}
	for _, t := range f.TargetTraders {
		if strings.EqualFold(t, wallet) {
			return true
		}
	}
	return false
}

// confidenceRank orders the feed's stat-confidence labels; anything
// unrecognized ranks lowest.
var confidenceRank = map[string]int{
	"INSUFFICIENT": 0,
	"LOW":          1,
	"MEDIUM":       2,
	"HIGH":         3,
}

// MeetsConfidence checks a signal's trader-stat confidence label
// against the configured floor. An empty floor admits every label; an
// unrecognized floor is read as MEDIUM.
func (f *ExtendedFilters) MeetsConfidence(label string) bool {
	if f == nil || f.MinConfidence == "" {
		return true
	}
	floor, ok := confidenceRank[strings.ToUpper(strings.TrimSpace(f.MinConfidence))]
	if !ok {
		floor = confidenceRank["MEDIUM"]
	}
	return confidenceRank[strings.ToUpper(strings.TrimSpace(label))] >= floor
}

// MatchesCategory checks the category allow-list against a normalized
// market title/category string (substring match).
func (f *ExtendedFilters) MatchesCategory(normalized string) bool {
	if f == nil || len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if c == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(strings.TrimSpace(c))) {
			return true
		}
	}
	return false
}

// ParseExtendedFilters decodes the stored filter JSON. Empty input
// means no filters. A malformed document returns (nil, err) so the
// caller can log the data-quality defect and continue without filters.
func ParseExtendedFilters(raw string) (*ExtendedFilters, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var f ExtendedFilters
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Strategy is a copy-trading configuration. It is evaluated repeatedly
// while active and deactivated (never deleted) at window end or when
// risk limits force a permanent pause.
type Strategy struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Active bool   `db:"active" json:"active"`

	// Eligibility filters.
	MinPrice          float64 `db:"min_price" json:"min_price"`
	MaxPrice          float64 `db:"max_price" json:"max_price"`
	MinEdge           float64 `db:"min_edge" json:"min_edge"`
	MaxEdge           float64 `db:"max_edge" json:"max_edge"` // 0 = unbounded
	MinWinRate        float64 `db:"min_win_rate" json:"min_win_rate"`
	MaxWinRate        float64 `db:"max_win_rate" json:"max_win_rate"` // 0 = unbounded
	MinResolvedTrades int     `db:"min_resolved_trades" json:"min_resolved_trades"`
	MinConviction     float64 `db:"min_conviction" json:"min_conviction"`
	MaxConviction     float64 `db:"max_conviction" json:"max_conviction"` // 0 = unbounded
	SlippagePct       float64 `db:"slippage_pct" json:"slippage_pct"`

	// Sizing.
	Allocation       AllocationMethod `db:"allocation" json:"allocation"`
	BaseBet          float64          `db:"base_bet" json:"base_bet"`
	AllocationWeight float64          `db:"allocation_weight" json:"allocation_weight"`
	KellyFraction    float64          `db:"kelly_fraction" json:"kelly_fraction"`
	MinBet           float64          `db:"min_bet" json:"min_bet"`
	MaxBet           float64          `db:"max_bet" json:"max_bet"`

	// ML gate.
	MLGateEnabled bool    `db:"ml_gate_enabled" json:"ml_gate_enabled"`
	MLThreshold   float64 `db:"ml_threshold" json:"ml_threshold"`

	// Risk limits.
	MaxDrawdownPct     float64 `db:"max_drawdown_pct" json:"max_drawdown_pct"`
	MaxConsecLosses    int     `db:"max_consec_losses" json:"max_consec_losses"`
	MaxDailySpend      float64 `db:"max_daily_spend" json:"max_daily_spend"`
	MaxTradesPerDay    int     `db:"max_trades_per_day" json:"max_trades_per_day"`

	// Bankroll.
	StartingBalance float64 `db:"starting_balance" json:"starting_balance"`
	CurrentBalance  float64 `db:"current_balance" json:"current_balance"`

	// Extended filters, stored as a dedicated JSON column.
	FiltersJSON string `db:"filters_json" json:"filters_json,omitempty"`

	WindowStart     time.Time `db:"window_start" json:"window_start"`
	WindowEnd       time.Time `db:"window_end" json:"window_end"`
	LastProcessedAt time.Time `db:"last_processed_at" json:"last_processed_at"`
}

// InWindow reports whether the strategy's active window covers now.
// A zero WindowEnd means no end bound.
func (s *Strategy) InWindow(now time.Time) bool {
	if !s.WindowStart.IsZero() && now.Before(s.WindowStart) {
		return false
	}
	if !s.WindowEnd.IsZero() && now.After(s.WindowEnd) {
		return false
	}
	return true
}
