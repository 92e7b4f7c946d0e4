package engine

import (
	"math"
	"strings"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/shopspring/decimal"
)

// minComplementPrice floors the implied complement entry for SELL
// settlement, mirroring the Kelly ceiling on the BUY side.
const minComplementPrice = 0.0001

// SettlePnL converts an OPEN position against a settleable market into
// its terminal status and realized PnL.
//
// BUY won pays size*(1/entry - 1): the stake bought size/entry shares,
// each redeeming at 1. The naive size*(1-entry) understates the payout
// and must not be used. BUY lost forfeits the stake. A SELL is settled
// as the equivalent BUY of the complement outcome at (1 - entry).
// Voided markets return the stake: status VOIDED, pnl 0.
func SettlePnL(pos *model.Position, mkt *model.MarketSnapshot, now time.Time) (model.PositionStatus, float64) {
	if mkt.Voided(now) {
		return model.PositionVoided, 0
	}

	outcomeWon := mkt.WinningLabel != "" && strings.EqualFold(mkt.WinningLabel, pos.Outcome)

	if pos.Side == model.SideSell {
		// Seller profits when the sold outcome loses.
		complement := math.Max(minComplementPrice, 1-pos.EntryPrice)
		if !outcomeWon {
			return model.PositionWon, roundPnL(pos.SizeUSD * (1/complement - 1))
		}
		return model.PositionLost, -pos.SizeUSD
	}

	if outcomeWon {
		return model.PositionWon, roundPnL(pos.SizeUSD * (1/pos.EntryPrice - 1))
	}
	return model.PositionLost, -pos.SizeUSD
}

func roundPnL(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
