package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiiliketocode/polycopy-sub018/internal/feed"
	"github.com/hiiliketocode/polycopy-sub018/internal/market"
	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/logger"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/metrics"
	"github.com/hiiliketocode/polycopy-sub018/internal/scorer"
)

// Store interfaces, implemented by internal/repository (Postgres,
// Redis and in-memory flavors).

// Ledger is the dedup guard. Record must be atomic check-and-record:
// exactly one caller per (strategy, signal) pair ever sees true. A
// separate read-then-write probe would race, so Record is the whole
// interface.
type Ledger interface {
	Record(ctx context.Context, strategyID, signalID string) (bool, error)
}

type StrategyStore interface {
	Get(ctx context.Context, id string) (*model.Strategy, error)
	ListActive(ctx context.Context) ([]model.Strategy, error)
	SetActive(ctx context.Context, id string, active bool) error
	MarkProcessed(ctx context.Context, id string, lastProcessed time.Time) error
	UpdateBalance(ctx context.Context, id string, balance float64) error
}

type PositionStore interface {
	Create(ctx context.Context, p *model.Position) error
	ListOpen(ctx context.Context) ([]model.Position, error)
	Settle(ctx context.Context, id string, status model.PositionStatus, pnl float64, resolvedAt time.Time) error
	OpenExposure(ctx context.Context, strategyID string) (float64, error)
}

type RiskStore interface {
	Get(ctx context.Context, strategyID string) (*model.RiskState, error)
	Save(ctx context.Context, state *model.RiskState) error
}

// Engine drives the periodic evaluation and resolution passes.
type Engine struct {
	strategies StrategyStore
	positions  PositionStore
	riskStore  RiskStore
	ledger     Ledger
	feed       feed.Feed
	resolver   market.Resolver
	scorer     scorer.Scorer
	stream     *market.PriceStream
	risk       *RiskManager

	lookback        time.Duration
	batchSize       int
	defaultSlippage float64

	nowFn func() time.Time
}

type Options struct {
	Strategies StrategyStore
	Positions  PositionStore
	Risk       RiskStore
	Ledger     Ledger
	Feed       feed.Feed
	Resolver   market.Resolver
	Scorer     scorer.Scorer
	Stream     *market.PriceStream // optional live price feed
	Lookback   time.Duration
	BatchSize  int

	// DefaultSlippage applies to strategies whose slippage_pct is unset.
	DefaultSlippage float64
}

func New(opts Options) *Engine {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = 30 * time.Minute
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &Engine{
		strategies:      opts.Strategies,
		positions:       opts.Positions,
		riskStore:       opts.Risk,
		ledger:          opts.Ledger,
		feed:            opts.Feed,
		resolver:        opts.Resolver,
		scorer:          opts.Scorer,
		stream:          opts.Stream,
		risk:            NewRiskManager(),
		lookback:        lookback,
		batchSize:       batch,
		defaultSlippage: opts.DefaultSlippage,
		nowFn:           time.Now,
	}
}

// RunEvaluationPass pulls one batch of signals and routes it through
// every active strategy. Strategies run concurrently against the
// shared batch; market lookups and ML scores are cached per pass. A
// strategy failing mid-pass aborts only that strategy — already
// committed positions stand, and the ledger makes a retry idempotent.
func (e *Engine) RunEvaluationPass(ctx context.Context) error {
	runID := uuid.NewString()
	log := logger.ForPass(runID)
	now := e.nowFn()
	start := now
	defer func() {
		metrics.PassDuration.WithLabelValues("evaluation").Observe(time.Since(start).Seconds())
	}()

	strategies, err := e.strategies.ListActive(ctx)
	if err != nil {
		return apperrors.Fatal("listing active strategies", err)
	}
	if len(strategies) == 0 {
		log.Debug("no active strategies")
		return nil
	}

	signals, err := e.feed.FetchSince(ctx, now.Add(-e.lookback), e.batchSize)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return nil
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].Timestamp.Before(signals[j].Timestamp) })
	log.Info("evaluation pass started", "strategies", len(strategies), "signals", len(signals))

	marketCache := market.NewPassCache(e.resolver)
	scoreCache := scorer.NewPassCache(e.scorer)

	var wg sync.WaitGroup
	for i := range strategies {
		strat := strategies[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.evaluateStrategy(ctx, &strat, signals, marketCache, scoreCache, now, log); err != nil {
				logger.LogError(ctx, err, "strategy pass aborted", "strategy", strat.ID)
			}
		}()
	}
	wg.Wait()

	log.Info("evaluation pass finished", "elapsed", time.Since(start).String())
	return nil
}

func (e *Engine) evaluateStrategy(ctx context.Context, strat *model.Strategy, signals []model.Signal,
	marketCache *market.PassCache, scoreCache *scorer.PassCache, now time.Time, log *slog.Logger) error {

	if !strat.InWindow(now) {
		if !strat.WindowEnd.IsZero() && now.After(strat.WindowEnd) {
			// Retire, never delete: the window is over.
			if err := e.strategies.SetActive(ctx, strat.ID, false); err != nil {
				return apperrors.Fatal("deactivating expired strategy", err)
			}
			log.Info("strategy window ended, deactivated", "strategy", strat.ID)
		}
		return nil
	}

	// An unset slippage means the operator took the engine default, not
	// zero-cost fills.
	if strat.SlippagePct == 0 {
		strat.SlippagePct = e.defaultSlippage
	}

	state, err := e.riskStore.Get(ctx, strat.ID)
	if err != nil {
		return apperrors.Fatal("loading risk state", err)
	}
	if state == nil {
		state = model.NewRiskState(strat.ID, strat.StartingBalance)
	}
	state.RollDay(now)
	if state.Status == model.RiskPaused {
		log.Debug("strategy paused, skipping batch", "strategy", strat.ID, "reason", string(state.PauseReason))
		return nil
	}

	filters, err := model.ParseExtendedFilters(strat.FiltersJSON)
	if err != nil {
		// Degrade to no extended filters; parse failure is a data
		// quality defect, not a pass killer.
		log.Warn("extended filters unparseable, ignoring", "strategy", strat.ID, "error", err.Error())
		filters = nil
	}

	exposure, err := e.positions.OpenExposure(ctx, strat.ID)
	if err != nil {
		return apperrors.Fatal("computing open exposure", err)
	}
	bankroll := strat.CurrentBalance - exposure

	watermark := strat.LastProcessedAt
	stateDirty := false

	for i := range signals {
		sig := signals[i]
		metrics.SignalsEvaluated.WithLabelValues(strat.ID).Inc()

		acc, reason := Evaluate(EvalInput{
			Signal:   sig,
			Strategy: *strat,
			Filters:  filters,
			Now:      now,
			Bankroll: bankroll,
			Market: func() (*model.MarketSnapshot, error) {
				return marketCache.GetMarket(ctx, sig.MarketID)
			},
			MLScore: e.mlScoreFn(ctx, &sig, marketCache, scoreCache),
		})
		if reason != ReasonNone {
			metrics.SignalRejects.WithLabelValues(strat.ID, string(reason)).Inc()
			if reason != ReasonStaleSignal {
				log.Debug("signal rejected", "strategy", strat.ID, "signal", sig.ID(), "reason", string(reason))
			}
			if sig.Timestamp.After(watermark) && reason != ReasonMarketError {
				watermark = sig.Timestamp
			}
			continue
		}

		if reason := e.risk.Gate(strat, state, acc.BetSize, now); reason != ReasonNone {
			metrics.SignalRejects.WithLabelValues(strat.ID, string(reason)).Inc()
			stateDirty = true
			if state.Status == model.RiskPaused {
				log.Warn("risk breaker tripped", "strategy", strat.ID, "reason", string(state.PauseReason))
				break
			}
			continue
		}

		signalID := sig.ID()
		claimed, err := e.ledger.Record(ctx, strat.ID, signalID)
		if err != nil {
			// An unconfirmed ledger write means the dedup guarantee is
			// unknown; skip the signal rather than risk a double entry.
			metrics.SignalRejects.WithLabelValues(strat.ID, string(ReasonLedgerError)).Inc()
			logger.LogError(ctx, err, "ledger write failed", "strategy", strat.ID, "signal", signalID)
			continue
		}
		if !claimed {
			metrics.SignalRejects.WithLabelValues(strat.ID, string(ReasonDuplicate)).Inc()
			if sig.Timestamp.After(watermark) {
				watermark = sig.Timestamp
			}
			continue
		}

		pos := &model.Position{
			ID:         uuid.NewString(),
			StrategyID: strat.ID,
			SignalID:   signalID,
			Trader:     sig.Trader,
			MarketID:   sig.MarketID,
			Outcome:    sig.Outcome,
			Side:       sig.Side,
			EntryPrice: acc.PriceWithSlippage,
			SizeUSD:    acc.BetSize,
			Status:     model.PositionOpen,
			OpenedAt:   now,
		}
		if err := e.positions.Create(ctx, pos); err != nil {
			// The ledger entry stays: this signal is burned for the
			// strategy but no money moved. Reported, not swallowed.
			logger.LogError(ctx, err, "position create failed", "strategy", strat.ID, "signal", signalID)
			return apperrors.Fatal("creating position", err)
		}

		e.risk.NoteOpen(state, acc.BetSize, now)
		stateDirty = true
		bankroll -= acc.BetSize
		if sig.Timestamp.After(watermark) {
			watermark = sig.Timestamp
		}

		metrics.PositionsOpened.WithLabelValues(strat.ID, string(sig.Side)).Inc()
		log.Info("position opened",
			"strategy", strat.ID, "signal", signalID, "market", sig.MarketID,
			"side", string(sig.Side), "entry", acc.PriceWithSlippage,
			"size", acc.BetSize, "edge", fmt.Sprintf("%.4f", acc.Edge))

		if e.stream != nil {
			e.stream.Subscribe([]string{sig.MarketID})
		}
	}

	if stateDirty {
		if err := e.riskStore.Save(ctx, state); err != nil {
			return apperrors.Fatal("saving risk state", err)
		}
	}
	if watermark.After(strat.LastProcessedAt) {
		if err := e.strategies.MarkProcessed(ctx, strat.ID, watermark); err != nil {
			return apperrors.Fatal("advancing watermark", err)
		}
	}
	return nil
}

// mlScoreFn builds the lazy scorer closure for one signal. The score
// request carries the live outcome price when the stream has a fresh
// tick, falling back to the metadata snapshot.
func (e *Engine) mlScoreFn(ctx context.Context, sig *model.Signal,
	marketCache *market.PassCache, scoreCache *scorer.PassCache) func() (float64, error) {

	if e.scorer == nil {
		return nil
	}
	return func() (float64, error) {
		req := scorer.ScoreRequest{
			SignalID:  sig.ID(),
			Trader:    sig.Trader,
			MarketID:  sig.MarketID,
			Side:      sig.Side,
			Outcome:   sig.Outcome,
			Price:     sig.Price,
			SizeUSD:   sig.SizeUSD,
			Timestamp: sig.Timestamp,
		}
		if mkt, err := marketCache.GetMarket(ctx, sig.MarketID); err == nil && mkt != nil {
			if p, ok := mkt.OutcomePrice(sig.Outcome); ok {
				req.OutcomePrice = p
			}
			req.MarketEnd = mkt.EndTime
			req.LiveStart = mkt.LiveStartTime
		}
		if e.stream != nil {
			if p, ok := e.stream.LastPrice(sig.MarketID, time.Minute); ok {
				req.OutcomePrice = p
			}
		}
		return scoreCache.Score(ctx, req)
	}
}

// RunResolutionPass settles OPEN positions whose markets have resolved
// or voided. It runs independently of evaluation and only ever touches
// OPEN rows, so the two passes are safe to overlap.
func (e *Engine) RunResolutionPass(ctx context.Context) error {
	runID := uuid.NewString()
	log := logger.ForPass(runID)
	now := e.nowFn()
	start := now
	defer func() {
		metrics.PassDuration.WithLabelValues("resolution").Observe(time.Since(start).Seconds())
	}()

	open, err := e.positions.ListOpen(ctx)
	if err != nil {
		return apperrors.Fatal("listing open positions", err)
	}
	if len(open) == 0 {
		return nil
	}
	log.Info("resolution pass started", "open_positions", len(open))

	marketCache := market.NewPassCache(e.resolver)

	// Group by strategy so each strategy's state is loaded and saved
	// once per pass.
	byStrategy := make(map[string][]model.Position)
	for _, p := range open {
		byStrategy[p.StrategyID] = append(byStrategy[p.StrategyID], p)
	}

	settledTotal := 0
	for strategyID, positions := range byStrategy {
		n, err := e.resolveForStrategy(ctx, strategyID, positions, marketCache, now, log)
		if err != nil {
			logger.LogError(ctx, err, "resolution aborted for strategy", "strategy", strategyID)
			continue
		}
		settledTotal += n
	}

	log.Info("resolution pass finished", "settled", settledTotal, "elapsed", time.Since(start).String())
	return nil
}

func (e *Engine) resolveForStrategy(ctx context.Context, strategyID string, positions []model.Position,
	marketCache *market.PassCache, now time.Time, log *slog.Logger) (int, error) {

	strat, err := e.strategies.Get(ctx, strategyID)
	if err != nil {
		return 0, err
	}
	state, err := e.riskStore.Get(ctx, strategyID)
	if err != nil {
		return 0, apperrors.Fatal("loading risk state", err)
	}
	if state == nil {
		state = model.NewRiskState(strategyID, strat.StartingBalance)
	}

	settled := 0
	for i := range positions {
		pos := positions[i]
		mkt, err := marketCache.GetMarket(ctx, pos.MarketID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// The metadata source no longer knows this market. Leave
				// the position open and flag the inconsistency; voiding
				// needs positive evidence, not absence of data.
				log.Warn("market missing during resolution", "position", pos.ID, "market", pos.MarketID)
				continue
			}
			logger.LogError(ctx, err, "market lookup failed during resolution", "market", pos.MarketID)
			continue
		}
		if !mkt.Settleable(now) {
			continue
		}

		status, pnl := SettlePnL(&pos, mkt, now)
		if err := e.positions.Settle(ctx, pos.ID, status, pnl, now); err != nil {
			logger.LogError(ctx, err, "position settle failed", "position", pos.ID)
			continue
		}

		e.risk.ApplyResult(strat, state, status, pnl, now)
		settled++
		metrics.PositionsResolved.WithLabelValues(strategyID, string(status)).Inc()
		metrics.RealizedPnL.WithLabelValues(strategyID).Set(state.CurrentEquity - strat.StartingBalance)
		log.Info("position settled",
			"strategy", strategyID, "position", pos.ID, "market", pos.MarketID,
			"status", string(status), "pnl", pnl)
	}

	if settled > 0 {
		if err := e.riskStore.Save(ctx, state); err != nil {
			return settled, apperrors.Fatal("saving risk state", err)
		}
		if err := e.strategies.UpdateBalance(ctx, strategyID, state.CurrentEquity); err != nil {
			return settled, apperrors.Fatal("updating strategy balance", err)
		}
	}
	return settled, nil
}

// PauseStrategy and ResumeStrategy are the operator transitions backing
// the admin API.
func (e *Engine) PauseStrategy(ctx context.Context, strategyID string) error {
	return e.mutateRiskState(ctx, strategyID, func(state *model.RiskState, now time.Time) {
		e.risk.PauseManual(state, now)
	})
}

func (e *Engine) ResumeStrategy(ctx context.Context, strategyID string) error {
	return e.mutateRiskState(ctx, strategyID, func(state *model.RiskState, now time.Time) {
		e.risk.Resume(state, now)
	})
}

// RiskState exposes the current state for the admin API.
func (e *Engine) RiskState(ctx context.Context, strategyID string) (*model.RiskState, error) {
	strat, err := e.strategies.Get(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	state, err := e.riskStore.Get(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = model.NewRiskState(strategyID, strat.StartingBalance)
	}
	return state, nil
}

func (e *Engine) mutateRiskState(ctx context.Context, strategyID string, fn func(*model.RiskState, time.Time)) error {
	state, err := e.RiskState(ctx, strategyID)
	if err != nil {
		return err
	}
	fn(state, e.nowFn())
	return e.riskStore.Save(ctx, state)
}
