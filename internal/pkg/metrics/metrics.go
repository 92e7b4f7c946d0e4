package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_signals_evaluated_total",
		Help: "Signals routed through the eligibility evaluator",
	}, []string{"strategy"})

	SignalRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_signal_rejects_total",
		Help: "Eligibility rejections by reason code",
	}, []string{"strategy", "reason"})

	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_positions_opened_total",
		Help: "Positions committed by the evaluation pass",
	}, []string{"strategy", "side"})

	PositionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_positions_resolved_total",
		Help: "Positions settled by the resolution pass",
	}, []string{"strategy", "outcome"})

	RealizedPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polycopy_realized_pnl_usd",
		Help: "Cumulative realized PnL per strategy",
	}, []string{"strategy"})

	RiskPauses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_risk_pauses_total",
		Help: "Risk manager ACTIVE to PAUSED transitions",
	}, []string{"strategy", "reason"})

	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polycopy_pass_duration_seconds",
		Help:    "Wall time of evaluation and resolution passes",
		Buckets: prometheus.DefBuckets,
	}, []string{"pass"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polycopy_upstream_latency_seconds",
		Help:    "External call latency (market lookup, scorer, feed)",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polycopy_upstream_errors_total",
		Help: "External call failures by upstream and kind",
	}, []string{"upstream", "kind"})
)
