package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
	"github.com/hiiliketocode/polycopy-sub018/internal/repository"
	"github.com/hiiliketocode/polycopy-sub018/internal/scorer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	signals []model.Signal
	calls   int
}

func (f *fakeFeed) FetchSince(ctx context.Context, since time.Time, limit int) ([]model.Signal, error) {
	f.calls++
	return f.signals, nil
}

type fakeResolver struct {
	markets map[string]*model.MarketSnapshot
	calls   int
}

func (r *fakeResolver) GetMarket(ctx context.Context, marketID string) (*model.MarketSnapshot, error) {
	r.calls++
	m, ok := r.markets[marketID]
	if !ok {
		return nil, apperrors.NotFound("market not found")
	}
	return m, nil
}

type fakeScorer struct {
	prob  float64
	err   error
	calls int
}

func (s *fakeScorer) Score(ctx context.Context, req scorer.ScoreRequest) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.prob, nil
}

type testWorld struct {
	engine     *Engine
	strategies *repository.MemStrategyStore
	positions  *repository.MemPositionStore
	riskStore  *repository.MemRiskStore
	ledger     *repository.MemLedger
	feed       *fakeFeed
	resolver   *fakeResolver
	scorer     *fakeScorer
}

func newTestWorld(t *testing.T, strategies []*model.Strategy, signals []model.Signal,
	markets map[string]*model.MarketSnapshot, sc *fakeScorer) *testWorld {
	t.Helper()

	w := &testWorld{
		strategies: repository.NewMemStrategyStore(),
		positions:  repository.NewMemPositionStore(),
		riskStore:  repository.NewMemRiskStore(),
		ledger:     repository.NewMemLedger(),
		feed:       &fakeFeed{signals: signals},
		resolver:   &fakeResolver{markets: markets},
		scorer:     sc,
	}
	for _, s := range strategies {
		w.strategies.Put(s)
	}
	opts := Options{
		Strategies: w.strategies,
		Positions:  w.positions,
		Risk:       w.riskStore,
		Ledger:     w.ledger,
		Feed:       w.feed,
		Resolver:   w.resolver,
	}
	if sc != nil {
		opts.Scorer = sc
	}
	w.engine = New(opts)
	w.engine.nowFn = func() time.Time { return evalNow }
	return w
}

func activeStrategy(id string) *model.Strategy {
	strat := baseStrategy()
	strat.ID = id
	strat.Active = true
	strat.StartingBalance = 1000
	strat.CurrentBalance = 1000
	return &strat
}

func freshSignal(tx, marketID string, age time.Duration) model.Signal {
	sig := baseSignal()
	sig.TxHash = tx
	sig.MarketID = marketID
	sig.Timestamp = evalNow.Add(-age)
	return sig
}

func TestEngine_EvaluationOpensPositions(t *testing.T) {
	strat := activeStrategy("s1")
	signals := []model.Signal{
		freshSignal("0x01", "mkt-1", 5*time.Minute),
		freshSignal("0x02", "mkt-2", 3*time.Minute),
	}
	markets := map[string]*model.MarketSnapshot{
		"mkt-1": openMarket(),
		"mkt-2": openMarket(),
	}
	w := newTestWorld(t, []*model.Strategy{strat}, signals, markets, nil)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	n, err := w.positions.CountByStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	open, err := w.positions.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.InDelta(t, 0.416, open[0].EntryPrice, 1e-9)
	assert.Equal(t, 5.0, open[0].SizeUSD)

	got, err := w.strategies.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, signals[1].Timestamp, got.LastProcessedAt, "watermark sits on the newest processed signal")
}

func TestEngine_DefaultSlippageAppliedWhenUnset(t *testing.T) {
	strat := activeStrategy("s1")
	strat.SlippagePct = 0
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	w := newTestWorld(t, []*model.Strategy{strat}, signals,
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)
	w.engine.defaultSlippage = 0.04

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	open, err := w.positions.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, 0.416, open[0].EntryPrice, 1e-9, "unset slippage takes the engine default, not zero")
}

func TestEngine_RerunNeverDuplicatesPositions(t *testing.T) {
	strat := activeStrategy("s1")
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	markets := map[string]*model.MarketSnapshot{"mkt-1": openMarket()}
	w := newTestWorld(t, []*model.Strategy{strat}, signals, markets, nil)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))
	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))
	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	n, err := w.positions.CountByStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_LedgerBlocksReplayedSignal(t *testing.T) {
	// Replay with a reset watermark: the ledger alone must hold the line.
	strat := activeStrategy("s1")
	sig := freshSignal("0x01", "mkt-1", 5*time.Minute)
	w := newTestWorld(t, []*model.Strategy{strat}, []model.Signal{sig},
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)

	claimed, err := w.ledger.Record(context.Background(), "s1", sig.ID())
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	n, err := w.positions.CountByStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := w.strategies.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, sig.Timestamp, got.LastProcessedAt, "duplicates still advance the watermark")
}

func TestEngine_LedgerScopedPerStrategy(t *testing.T) {
	s1 := activeStrategy("s1")
	s2 := activeStrategy("s2")
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	w := newTestWorld(t, []*model.Strategy{s1, s2}, signals,
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	for _, id := range []string{"s1", "s2"} {
		n, err := w.positions.CountByStrategy(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "strategy %s copies the signal independently", id)
	}
}

func TestEngine_MLUnavailableBlocksGatedStrategy(t *testing.T) {
	strat := activeStrategy("s1")
	strat.MLGateEnabled = true
	strat.MLThreshold = 0.60
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	sc := &fakeScorer{err: scorer.ErrUnavailable}
	w := newTestWorld(t, []*model.Strategy{strat}, signals,
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, sc)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	n, err := w.positions.CountByStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "no score means no trade")
	assert.Equal(t, 1, sc.calls)
}

func TestEngine_MLGatePassesAboveThreshold(t *testing.T) {
	strat := activeStrategy("s1")
	strat.MLGateEnabled = true
	strat.MLThreshold = 0.60
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	sc := &fakeScorer{prob: 0.85}
	w := newTestWorld(t, []*model.Strategy{strat}, signals,
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, sc)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	n, err := w.positions.CountByStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_PausedStrategySkipsBatch(t *testing.T) {
	strat := activeStrategy("s1")
	state := model.NewRiskState("s1", 1000)
	state.Status = model.RiskPaused
	state.PauseReason = model.PauseManual

	w := newTestWorld(t, []*model.Strategy{strat},
		[]model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)},
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)
	require.NoError(t, w.riskStore.Save(context.Background(), state))

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	n, err := w.positions.CountByStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_ResolutionSettlesAndUpdatesBalance(t *testing.T) {
	strat := activeStrategy("s1")
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	w := newTestWorld(t, []*model.Strategy{strat}, signals,
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	// The market resolves in favor of the copied side.
	won := openMarket()
	won.Resolved = true
	won.WinningLabel = "Yes"
	w.resolver.markets["mkt-1"] = won

	require.NoError(t, w.engine.RunResolutionPass(context.Background()))

	open, err := w.positions.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)

	// 5 USD at 0.416 entry: payout 5*(1/0.416 - 1) = 7.02 to the cent.
	state, err := w.riskStore.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.InDelta(t, 1007.02, state.CurrentEquity, 1e-9)
	assert.Equal(t, 1, state.Wins)

	got, err := w.strategies.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.InDelta(t, 1007.02, got.CurrentBalance, 1e-9)
}

func TestEngine_ResolutionVoidsClosedMarketWithoutWinner(t *testing.T) {
	strat := activeStrategy("s1")
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	w := newTestWorld(t, []*model.Strategy{strat}, signals,
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	voided := openMarket()
	voided.Closed = true
	voided.EndTime = evalNow.Add(-time.Hour)
	w.resolver.markets["mkt-1"] = voided

	require.NoError(t, w.engine.RunResolutionPass(context.Background()))

	open, err := w.positions.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)

	state, err := w.riskStore.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1000.0, state.CurrentEquity, "voided positions return the stake")
	assert.Equal(t, 0, state.Wins)
	assert.Equal(t, 0, state.Losses)
}

func TestEngine_ResolutionLeavesUnresolvedOpen(t *testing.T) {
	strat := activeStrategy("s1")
	signals := []model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)}
	w := newTestWorld(t, []*model.Strategy{strat}, signals,
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))
	require.NoError(t, w.engine.RunResolutionPass(context.Background()))

	open, err := w.positions.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1, "open market, open position")
}

func TestEngine_ExpiredWindowDeactivatesStrategy(t *testing.T) {
	strat := activeStrategy("s1")
	strat.WindowEnd = evalNow.Add(-time.Hour)
	w := newTestWorld(t, []*model.Strategy{strat},
		[]model.Signal{freshSignal("0x01", "mkt-1", 5*time.Minute)},
		map[string]*model.MarketSnapshot{"mkt-1": openMarket()}, nil)

	require.NoError(t, w.engine.RunEvaluationPass(context.Background()))

	got, err := w.strategies.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, got.Active)

	n, err := w.positions.CountByStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEngine_PauseAndResumeStrategy(t *testing.T) {
	strat := activeStrategy("s1")
	w := newTestWorld(t, []*model.Strategy{strat}, nil, nil, nil)

	require.NoError(t, w.engine.PauseStrategy(context.Background(), "s1"))
	state, err := w.engine.RiskState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.RiskPaused, state.Status)
	assert.Equal(t, model.PauseManual, state.PauseReason)

	require.NoError(t, w.engine.ResumeStrategy(context.Background(), "s1"))
	state, err = w.engine.RiskState(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.RiskActive, state.Status)
}
