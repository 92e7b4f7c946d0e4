package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TraderStats is the point-in-time quality snapshot attached to each
// signal by the feed. WinRate and ResolvedCount only cover trades that
// had resolved before the signal's timestamp (no look-ahead).
type TraderStats struct {
	WinRate       float64 `json:"win_rate"`
	ResolvedCount int     `json:"resolved_count"`
	AvgTradeSize  float64 `json:"avg_trade_size"`
	Confidence    string  `json:"confidence,omitempty"` // HIGH / MEDIUM / LOW / INSUFFICIENT
}

// Signal is one observed trade by a copied trader.
type Signal struct {
	TxHash      string      `json:"tx_hash,omitempty"`
	Trader      string      `json:"trader"`
	MarketID    string      `json:"market_id"`
	Side        Side        `json:"side"`
	Outcome     string      `json:"outcome"`
	Price       float64     `json:"price"` // 0..1
	SizeUSD     float64     `json:"size_usd"`
	Timestamp   time.Time   `json:"timestamp"`
	TraderStats TraderStats `json:"trader_stats"`
}

// ID returns the stable dedup identifier: the transaction hash when the
// venue supplied one, otherwise a composite digest of
// trader|market|timestamp. The same observation always derives the same
// ID across polling cycles.
func (s *Signal) ID() string {
	if s.TxHash != "" {
		return s.TxHash
	}
	raw := fmt.Sprintf("%s|%s|%d", strings.ToLower(s.Trader), s.MarketID, s.Timestamp.UnixMilli())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

// Conviction is the signal-strength proxy: current trade size over the
// trader's historical average. Zero average yields zero conviction.
func (s *Signal) Conviction() float64 {
	if s.TraderStats.AvgTradeSize <= 0 {
		return 0
	}
	return s.SizeUSD / s.TraderStats.AvgTradeSize
}
