package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/config"
	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/metrics"
)

// ErrUnavailable means no usable probability could be obtained. When a
// strategy is ML-gated this is a hard reject, never an implicit pass.
var ErrUnavailable = errors.New("ml score unavailable")

// Scorer produces a win probability in [0,1] for a signal.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (float64, error)
}

// ScoreRequest carries every field the model needs: the signal itself,
// the current market price of the matching outcome, and timing context.
type ScoreRequest struct {
	SignalID     string    `json:"signal_id"`
	Trader       string    `json:"trader"`
	MarketID     string    `json:"market_id"`
	Side         model.Side `json:"side"`
	Outcome      string    `json:"outcome"`
	Price        float64   `json:"price"`
	SizeUSD      float64   `json:"size_usd"`
	Timestamp    time.Time `json:"timestamp"`
	OutcomePrice float64   `json:"outcome_price"`
	MarketEnd    time.Time `json:"market_end,omitempty"`
	LiveStart    time.Time `json:"live_start,omitempty"`
}

type HTTPScorer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retries int
}

func NewHTTPScorer(cfg config.ScorerConfig) *HTTPScorer {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPScorer{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		retries: cfg.Retries,
	}
}

type scoreResponse struct {
	Probability *float64 `json:"probability"`
}

func (s *HTTPScorer) Score(ctx context.Context, req ScoreRequest) (float64, error) {
	if s.baseURL == "" {
		return 0, ErrUnavailable
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		prob, err := s.call(ctx, req)
		if err == nil {
			return prob, nil
		}
		lastErr = err
		if !shouldRetry(ctx, attempt, s.retries) {
			break
		}
	}
	metrics.UpstreamErrors.WithLabelValues("scorer", "exhausted").Inc()
	return 0, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (s *HTTPScorer) call(ctx context.Context, req ScoreRequest) (float64, error) {
	start := time.Now()
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("scorer", "network").Inc()
		return 0, err
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.WithLabelValues("scorer").Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamErrors.WithLabelValues("scorer", fmt.Sprintf("status_%d", resp.StatusCode)).Inc()
		return 0, fmt.Errorf("scorer status %d", resp.StatusCode)
	}

	var payload scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.UpstreamErrors.WithLabelValues("scorer", "decode").Inc()
		return 0, err
	}
	if payload.Probability == nil {
		return 0, fmt.Errorf("scorer response missing probability")
	}
	return NormalizeProbability(*payload.Probability)
}

// NormalizeProbability maps responses on either a 0-1 or 0-100 scale
// onto [0,1]. Anything outside both scales is malformed.
func NormalizeProbability(p float64) (float64, error) {
	switch {
	case p >= 0 && p <= 1:
		return p, nil
	case p > 1 && p <= 100:
		return p / 100, nil
	default:
		return 0, fmt.Errorf("probability %v out of range", p)
	}
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	default:
	}
	time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	return true
}
