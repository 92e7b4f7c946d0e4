package scheduler

import (
	"context"
	"fmt"

	"github.com/hiiliketocode/polycopy-sub018/internal/engine"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the engine's periodic passes. Evaluation and
// resolution are independent cron entries; cron skips are acceptable
// because every pass is idempotent behind the trade ledger.
type Scheduler struct {
	cron   *cron.Cron
	engine *engine.Engine
	ctx    context.Context
}

func New(ctx context.Context, eng *engine.Engine) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		engine: eng,
		ctx:    ctx,
	}
}

// Register wires the evaluation and resolution cron specs.
func (s *Scheduler) Register(evalSpec, resolveSpec string) error {
	if _, err := s.cron.AddFunc(evalSpec, s.runEvaluation); err != nil {
		return fmt.Errorf("register evaluation pass: %w", err)
	}
	if _, err := s.cron.AddFunc(resolveSpec, s.runResolution); err != nil {
		return fmt.Errorf("register resolution pass: %w", err)
	}
	return nil
}

// AddJob registers an auxiliary maintenance job on its own cron spec.
func (s *Scheduler) AddJob(spec, name string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("register %s job: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started")
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	logger.Info("scheduler stopped")
}

// RunEvaluationNow triggers an immediate pass (run_on_start / manual).
func (s *Scheduler) RunEvaluationNow() {
	s.runEvaluation()
}

func (s *Scheduler) runEvaluation() {
	if err := s.engine.RunEvaluationPass(s.ctx); err != nil {
		logger.LogError(s.ctx, err, "evaluation pass failed")
	}
}

func (s *Scheduler) runResolution() {
	if err := s.engine.RunResolutionPass(s.ctx); err != nil {
		logger.LogError(s.ctx, err, "resolution pass failed")
	}
}
