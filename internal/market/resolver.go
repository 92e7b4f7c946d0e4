package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/config"
	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

// Resolver is the thin adapter over the market metadata source. A
// missing market is reported as NotFound, never as "open".
type Resolver interface {
	GetMarket(ctx context.Context, marketID string) (*model.MarketSnapshot, error)
}

type HTTPResolver struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	retries int
	timeout time.Duration
}

func NewHTTPResolver(cfg config.MarketsConfig) *HTTPResolver {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	qps := cfg.RateLimitQPS
	if qps <= 0 {
		qps = 10
	}
	return &HTTPResolver{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(qps), int(qps)+1),
		retries: cfg.Retries,
		timeout: timeout,
	}
}

// marketPayload is the upstream wire shape. Outcomes and prices arrive
// as parallel JSON-encoded string arrays.
type marketPayload struct {
	ConditionID   string `json:"condition_id"`
	Question      string `json:"question"`
	Category      string `json:"category"`
	Closed        bool   `json:"closed"`
	Resolved      bool   `json:"resolved"`
	StartDate     string `json:"start_date_iso"`
	EndDate       string `json:"end_date_iso"`
	GameStartTime string `json:"game_start_time"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcome_prices"`
}

func (r *HTTPResolver) GetMarket(ctx context.Context, marketID string) (*model.MarketSnapshot, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Transient("market lookup rate wait", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		snap, err := r.fetch(ctx, marketID)
		if err == nil {
			return snap, nil
		}
		if apperrors.IsNotFound(err) || !apperrors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if !shouldRetry(ctx, attempt, r.retries) {
			break
		}
	}
	metrics.UpstreamErrors.WithLabelValues("markets", "exhausted").Inc()
	return nil, lastErr
}

func (r *HTTPResolver) fetch(ctx context.Context, marketID string) (*model.MarketSnapshot, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/markets/%s", r.baseURL, marketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.DataIntegrity("bad market request", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("markets", "network").Inc()
		return nil, apperrors.Transient("market lookup failed", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.WithLabelValues("markets").Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("market " + marketID + " not found")
	case resp.StatusCode >= 500:
		metrics.UpstreamErrors.WithLabelValues("markets", "5xx").Inc()
		return nil, apperrors.Transient(fmt.Sprintf("market lookup status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.DataIntegrity(fmt.Sprintf("market lookup status %d", resp.StatusCode), nil)
	}

	var payload marketPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.UpstreamErrors.WithLabelValues("markets", "decode").Inc()
		return nil, apperrors.DataIntegrity("malformed market payload", err)
	}
	return payload.toSnapshot(marketID)
}

func (p *marketPayload) toSnapshot(marketID string) (*model.MarketSnapshot, error) {
	snap := &model.MarketSnapshot{
		ID:       marketID,
		Title:    p.Question,
		Category: p.Category,
		Closed:   p.Closed,
		Resolved: p.Resolved,
	}
	if p.ConditionID != "" {
		snap.ID = p.ConditionID
	}
	snap.StartTime = parseTime(p.StartDate)
	snap.EndTime = parseTime(p.EndDate)
	snap.LiveStartTime = parseTime(p.GameStartTime)

	labels, err := decodeStringArray(p.Outcomes)
	if err != nil {
		return nil, apperrors.DataIntegrity("malformed market outcomes", err)
	}
	prices, err := decodeFloatArray(p.OutcomePrices)
	if err != nil {
		return nil, apperrors.DataIntegrity("malformed market prices", err)
	}
	if len(prices) > 0 && len(prices) != len(labels) {
		return nil, apperrors.DataIntegrity("outcome/price arity mismatch", nil)
	}

	snap.Outcomes = labels
	snap.OutcomePrices = make(map[string]float64, len(labels))
	for i, label := range labels {
		price := 0.0
		if i < len(prices) {
			price = prices[i]
		}
		snap.OutcomePrices[label] = price
		if p.Resolved && price >= 0.999 {
			snap.WinningLabel = label
		}
	}
	return snap, nil
}

func decodeStringArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeFloatArray(raw string) ([]float64, error) {
	if raw == "" {
		return nil, nil
	}
	// Prices may arrive as numbers or quoted strings.
	var asStrings []string
	if err := json.Unmarshal([]byte(raw), &asStrings); err == nil {
		out := make([]float64, 0, len(asStrings))
		for _, s := range asStrings {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	}
	var asFloats []float64
	if err := json.Unmarshal([]byte(raw), &asFloats); err != nil {
		return nil, err
	}
	return asFloats, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
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
