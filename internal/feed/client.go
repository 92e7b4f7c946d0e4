package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/config"
	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/metrics"
)

// Feed delivers batches of copied-trader observations. Batches may
// contain duplicates across polling cycles; dedup is the engine's job.
type Feed interface {
	FetchSince(ctx context.Context, since time.Time, limit int) ([]model.Signal, error)
}

type HTTPFeed struct {
	baseURL string
	apiKey  string
	client  *http.Client

	// trader stats snapshots are cached briefly; the feed revisits the
	// same wallets every cycle.
	statsMu  sync.Mutex
	statsTTL time.Duration
	stats    map[string]statsEntry
}

type statsEntry struct {
	stats   model.TraderStats
	fetched time.Time
}

func NewHTTPFeed(cfg config.FeedConfig) *HTTPFeed {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFeed{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		statsTTL: 5 * time.Minute,
		stats:    make(map[string]statsEntry),
	}
}

type tradePayload struct {
	TxHash    string  `json:"transaction_hash"`
	Wallet    string  `json:"proxy_wallet"`
	Condition string  `json:"condition_id"`
	Side      string  `json:"side"`
	Outcome   string  `json:"outcome"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

type statsPayload struct {
	WinRate       float64 `json:"win_rate"`
	ResolvedCount int     `json:"resolved_count"`
	AvgTradeSize  float64 `json:"avg_trade_size"`
	Confidence    string  `json:"stat_confidence"`
}

func (f *HTTPFeed) FetchSince(ctx context.Context, since time.Time, limit int) ([]model.Signal, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 500
	}

	q := url.Values{}
	q.Set("after", strconv.FormatInt(since.Unix(), 10))
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/trades?"+q.Encode(), nil)
	if err != nil {
		return nil, apperrors.DataIntegrity("bad feed request", err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("feed", "network").Inc()
		return nil, apperrors.Transient("signal feed fetch failed", err)
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.WithLabelValues("feed").Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 500 {
		metrics.UpstreamErrors.WithLabelValues("feed", "5xx").Inc()
		return nil, apperrors.Transient(fmt.Sprintf("signal feed status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.DataIntegrity(fmt.Sprintf("signal feed status %d", resp.StatusCode), nil)
	}

	var trades []tradePayload
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		metrics.UpstreamErrors.WithLabelValues("feed", "decode").Inc()
		return nil, apperrors.DataIntegrity("malformed feed payload", err)
	}

	signals := make([]model.Signal, 0, len(trades))
	for _, t := range trades {
		if t.Wallet == "" || t.Condition == "" || t.Price <= 0 {
			// Skip rows the venue half-filled; a partial trade row is a
			// data-quality issue, not a tradable signal.
			metrics.UpstreamErrors.WithLabelValues("feed", "partial_row").Inc()
			continue
		}
		sig := model.Signal{
			TxHash:    t.TxHash,
			Trader:    t.Wallet,
			MarketID:  t.Condition,
			Side:      model.Side(t.Side),
			Outcome:   t.Outcome,
			Price:     t.Price,
			SizeUSD:   t.Size,
			Timestamp: time.Unix(t.Timestamp, 0).UTC(),
		}
		stats, err := f.traderStats(ctx, t.Wallet)
		if err != nil {
			// Stats-less signals still flow; eligibility's win-rate and
			// history checks will reject them downstream.
			metrics.UpstreamErrors.WithLabelValues("feed", "stats").Inc()
		} else {
			sig.TraderStats = stats
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

func (f *HTTPFeed) traderStats(ctx context.Context, wallet string) (model.TraderStats, error) {
	f.statsMu.Lock()
	if entry, ok := f.stats[wallet]; ok && time.Since(entry.fetched) < f.statsTTL {
		f.statsMu.Unlock()
		return entry.stats, nil
	}
	f.statsMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/traders/"+url.PathEscape(wallet)+"/stats", nil)
	if err != nil {
		return model.TraderStats{}, err
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return model.TraderStats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.TraderStats{}, fmt.Errorf("trader stats status %d", resp.StatusCode)
	}

	var payload statsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.TraderStats{}, err
	}

	stats := model.TraderStats{
		WinRate:       payload.WinRate,
		ResolvedCount: payload.ResolvedCount,
		AvgTradeSize:  payload.AvgTradeSize,
		Confidence:    payload.Confidence,
	}
	f.statsMu.Lock()
	f.stats[wallet] = statsEntry{stats: stats, fetched: time.Now()}
	f.statsMu.Unlock()
	return stats, nil
}
