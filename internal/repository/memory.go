package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
)

// In-memory stores for paper mode and tests. Semantics mirror the
// Postgres implementations, including the atomic check-and-record on
// the ledger.

type MemLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemLedger() *MemLedger {
	return &MemLedger{seen: make(map[string]struct{})}
}

func ledgerKey(strategyID, signalID string) string {
	return strategyID + ":" + signalID
}

func (l *MemLedger) Record(ctx context.Context, strategyID, signalID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(strategyID, signalID)
	if _, ok := l.seen[key]; ok {
		return false, nil
	}
	l.seen[key] = struct{}{}
	return true, nil
}

type MemPositionStore struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
}

func NewMemPositionStore() *MemPositionStore {
	return &MemPositionStore{positions: make(map[string]*model.Position)}
}

func (s *MemPositionStore) Create(ctx context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *MemPositionStore) ListOpen(ctx context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.Status == model.PositionOpen {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (s *MemPositionStore) Settle(ctx context.Context, id string, status model.PositionStatus, pnl float64, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return apperrors.NotFound("position not found")
	}
	if p.Status != model.PositionOpen {
		// Settlement is single-shot; a second attempt is a no-op.
		return nil
	}
	p.Status = status
	p.PnLUSD = pnl
	p.ResolvedAt = resolvedAt
	return nil
}

func (s *MemPositionStore) OpenExposure(ctx context.Context, strategyID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, p := range s.positions {
		if p.StrategyID == strategyID && p.Status == model.PositionOpen {
			total += p.SizeUSD
		}
	}
	return total, nil
}

func (s *MemPositionStore) CountByStrategy(ctx context.Context, strategyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.positions {
		if p.StrategyID == strategyID {
			n++
		}
	}
	return n, nil
}

type MemRiskStore struct {
	mu     sync.RWMutex
	states map[string]*model.RiskState
}

func NewMemRiskStore() *MemRiskStore {
	return &MemRiskStore{states: make(map[string]*model.RiskState)}
}

func (s *MemRiskStore) Get(ctx context.Context, strategyID string) (*model.RiskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[strategyID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *MemRiskStore) Save(ctx context.Context, state *model.RiskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.states[state.StrategyID] = &cp
	return nil
}

type MemStrategyStore struct {
	mu         sync.RWMutex
	strategies map[string]*model.Strategy
}

func NewMemStrategyStore() *MemStrategyStore {
	return &MemStrategyStore{strategies: make(map[string]*model.Strategy)}
}

func (s *MemStrategyStore) Put(strategy *model.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *strategy
	s.strategies[strategy.ID] = &cp
}

func (s *MemStrategyStore) Get(ctx context.Context, id string) (*model.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[id]
	if !ok {
		return nil, apperrors.NotFound("strategy not found")
	}
	cp := *st
	return &cp, nil
}

func (s *MemStrategyStore) ListActive(ctx context.Context) ([]model.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Strategy
	for _, st := range s.strategies {
		if st.Active {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStrategyStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok {
		return apperrors.NotFound("strategy not found")
	}
	st.Active = active
	return nil
}

func (s *MemStrategyStore) MarkProcessed(ctx context.Context, id string, lastProcessed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok {
		return apperrors.NotFound("strategy not found")
	}
	if lastProcessed.After(st.LastProcessedAt) {
		st.LastProcessedAt = lastProcessed
	}
	return nil
}

func (s *MemStrategyStore) UpdateBalance(ctx context.Context, id string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok {
		return apperrors.NotFound("strategy not found")
	}
	st.CurrentBalance = balance
	return nil
}
