package model

import (
	"strings"
	"time"
)

// MarketSnapshot is the lifecycle view of one market as reported by the
// metadata source. Closed and Resolved are distinct: closed means no new
// positions, resolved means a winner (or void) is determined.
type MarketSnapshot struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Closed        bool      `json:"closed"`
	Resolved      bool      `json:"resolved"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	LiveStartTime time.Time `json:"live_start_time"`
	Outcomes      []string  `json:"outcomes"`
	// OutcomePrices maps outcome label to current (or resolution) price.
	// On a resolved market the winning outcome is priced 1, others 0.
	OutcomePrices map[string]float64 `json:"outcome_prices"`
	WinningLabel  string             `json:"winning_label,omitempty"`
}

// Voided reports a market that finished without a determinable winner
// as of now. Stakes on voided markets are returned, not won or lost.
func (m *MarketSnapshot) Voided(now time.Time) bool {
	if m.Resolved && m.WinningLabel == "" {
		return true
	}
	// Closed past its end with no winner reported: classify as voided
	// rather than leaving positions open forever.
	return m.Closed && m.WinningLabel == "" && !m.EndTime.IsZero() && now.After(m.EndTime)
}

// Settleable reports whether open positions against this market can be
// converted to a terminal state.
func (m *MarketSnapshot) Settleable(now time.Time) bool {
	return m.Resolved || m.Voided(now)
}

// OutcomePrice returns the current price for an outcome label,
// case-insensitively. ok is false when the label is unknown.
func (m *MarketSnapshot) OutcomePrice(label string) (float64, bool) {
	if p, ok := m.OutcomePrices[label]; ok {
		return p, true
	}
	for k, p := range m.OutcomePrices {
		if strings.EqualFold(k, label) {
			return p, true
		}
	}
	return 0, false
}

// NormalizedTitle lowers the title and category for substring matching
// in category filters.
func (m *MarketSnapshot) NormalizedTitle() string {
	return strings.ToLower(strings.TrimSpace(m.Title + " " + m.Category))
}
