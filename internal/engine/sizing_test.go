package engine

import (
	"testing"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestComputeBetSize_FixedClampsToMax(t *testing.T) {
	strat := &model.Strategy{
		Allocation:       model.AllocFixed,
		BaseBet:          5,
		AllocationWeight: 2,
		MinBet:           1,
		MaxBet:           8,
	}

	bet := ComputeBetSize(strat, SizingInput{Bankroll: 1000})
	assert.Equal(t, 8.0, bet) // 5*2=10, clamped to max
}

func TestComputeBetSize_KellyAtPriceCeiling(t *testing.T) {
	strat := &model.Strategy{
		Allocation:    model.AllocKelly,
		KellyFraction: 0.25,
		MinBet:        2,
		MaxBet:        500,
	}

	// At 0.99 the denominator (1-price) is degenerate; must return
	// exactly MinBet, never a blown-up fraction of bankroll.
	bet := ComputeBetSize(strat, SizingInput{
		EntryPrice: 0.99,
		Edge:       0.10,
		Bankroll:   10000,
	})
	assert.Equal(t, 2.0, bet)
}

func TestComputeBetSize_KellyFraction(t *testing.T) {
	strat := &model.Strategy{
		Allocation:    model.AllocKelly,
		KellyFraction: 0.5,
		MinBet:        1,
		MaxBet:        1000,
	}

	// fullKelly = 0.1 / (1-0.5) = 0.2; bet = 1000 * 0.2 * 0.5 = 100
	bet := ComputeBetSize(strat, SizingInput{
		EntryPrice: 0.50,
		Edge:       0.10,
		Bankroll:   1000,
	})
	assert.Equal(t, 100.0, bet)
}

func TestComputeBetSize_EdgeScaled(t *testing.T) {
	strat := &model.Strategy{
		Allocation: model.AllocEdgeScaled,
		BaseBet:    10,
		MinBet:     1,
		MaxBet:     100,
	}

	// 10 * (1 + 0.1*5) = 15
	bet := ComputeBetSize(strat, SizingInput{Edge: 0.10})
	assert.Equal(t, 15.0, bet)
}

func TestComputeBetSize_TieredSteps(t *testing.T) {
	strat := &model.Strategy{
		Allocation: model.AllocTiered,
		BaseBet:    10,
		MinBet:     1,
		MaxBet:     100,
	}

	cases := []struct {
		edge float64
		want float64
	}{
		{0.20, 20.0},
		{0.15, 20.0},
		{0.12, 15.0},
		{0.07, 10.0},
		{0.02, 5.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ComputeBetSize(strat, SizingInput{Edge: tc.edge}), "edge=%v", tc.edge)
	}
}

func TestComputeBetSize_ConvictionClamped(t *testing.T) {
	strat := &model.Strategy{
		Allocation: model.AllocConviction,
		BaseBet:    10,
		MinBet:     1,
		MaxBet:     100,
	}

	assert.Equal(t, 5.0, ComputeBetSize(strat, SizingInput{Conviction: 0.1}))  // floor 0.5x
	assert.Equal(t, 20.0, ComputeBetSize(strat, SizingInput{Conviction: 2.0})) // within band
	assert.Equal(t, 30.0, ComputeBetSize(strat, SizingInput{Conviction: 9.0})) // ceiling 3x
}

func TestComputeBetSize_MLScaledDefaultsWithoutProb(t *testing.T) {
	strat := &model.Strategy{
		Allocation: model.AllocMLScaled,
		BaseBet:    10,
		MinBet:     1,
		MaxBet:     100,
	}

	// Absent probability defaults to 0.55: 10 * (0.5+0.05) = 5.5
	assert.Equal(t, 5.5, ComputeBetSize(strat, SizingInput{}))

	prob := 0.9
	assert.Equal(t, 9.0, ComputeBetSize(strat, SizingInput{MLProb: &prob}))
}

func TestComputeBetSize_Confidence(t *testing.T) {
	strat := &model.Strategy{
		Allocation: model.AllocConfidence,
		BaseBet:    10,
		MinBet:     1,
		MaxBet:     100,
	}

	// edgeNorm = 0.25/0.25 = 1, convNorm = 1.5/3 = 0.5, wrNorm = 0.6
	// score = 1*0.4 + 0.5*0.3 + 0.6*0.3 = 0.73; bet = 10*(0.5+0.73*1.5)
	bet := ComputeBetSize(strat, SizingInput{
		Edge:       0.25,
		Conviction: 1.5,
		WinRate:    0.60,
	})
	assert.InDelta(t, 15.95, bet, 0.001)
}

func TestComputeBetSize_RoundsToCents(t *testing.T) {
	strat := &model.Strategy{
		Allocation: model.AllocEdgeScaled,
		BaseBet:    3.333,
		MinBet:     0.5,
		MaxBet:     100,
	}

	bet := ComputeBetSize(strat, SizingInput{Edge: 0.0733})
	assert.Equal(t, 4.55, bet)
}
