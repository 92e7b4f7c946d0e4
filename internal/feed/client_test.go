package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hiiliketocode/polycopy-sub018/internal/config"
	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedServer(t *testing.T, statsCalls *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/trades", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("after"))
		w.Write([]byte(`[
			{"transaction_hash":"0x01","proxy_wallet":"0xAbc","condition_id":"mkt-1","side":"BUY","outcome":"Yes","price":0.42,"size":50,"timestamp":1772366400},
			{"transaction_hash":"0x02","proxy_wallet":"0xAbc","condition_id":"mkt-2","side":"SELL","outcome":"No","price":0.58,"size":25,"timestamp":1772366460},
			{"transaction_hash":"0x03","proxy_wallet":"","condition_id":"mkt-3","side":"BUY","outcome":"Yes","price":0.5,"size":10,"timestamp":1772366520}
		]`))
	})
	mux.HandleFunc("/traders/0xAbc/stats", func(w http.ResponseWriter, r *http.Request) {
		*statsCalls++
		w.Write([]byte(`{"win_rate":0.63,"resolved_count":120,"avg_trade_size":40,"stat_confidence":"HIGH"}`))
	})
	return httptest.NewServer(mux)
}

func TestHTTPFeed_FetchSince(t *testing.T) {
	statsCalls := 0
	srv := feedServer(t, &statsCalls)
	defer srv.Close()

	f := NewHTTPFeed(config.FeedConfig{BaseURL: srv.URL})
	signals, err := f.FetchSince(context.Background(), time.Unix(1772366000, 0), 100)

	require.NoError(t, err)
	require.Len(t, signals, 2, "the wallet-less row is dropped")

	first := signals[0]
	assert.Equal(t, "0x01", first.TxHash)
	assert.Equal(t, "0xAbc", first.Trader)
	assert.Equal(t, model.SideBuy, first.Side)
	assert.Equal(t, 0.42, first.Price)
	assert.Equal(t, time.Unix(1772366400, 0).UTC(), first.Timestamp)
	assert.Equal(t, 0.63, first.TraderStats.WinRate)
	assert.Equal(t, "HIGH", first.TraderStats.Confidence)

	assert.Equal(t, 1, statsCalls, "stats are cached per wallet within the TTL")
}

func TestHTTPFeed_StatsFailureStillDeliversSignal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/trades", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"transaction_hash":"0x01","proxy_wallet":"0xAbc","condition_id":"mkt-1","side":"BUY","outcome":"Yes","price":0.42,"size":50,"timestamp":1772366400}]`))
	})
	mux.HandleFunc("/traders/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFeed(config.FeedConfig{BaseURL: srv.URL})
	signals, err := f.FetchSince(context.Background(), time.Unix(0, 0), 10)

	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Zero(t, signals[0].TraderStats.ResolvedCount, "stats-less signals flow and fail checks downstream")
}

func TestHTTPFeed_UpstreamOutageIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFeed(config.FeedConfig{BaseURL: srv.URL})
	_, err := f.FetchSince(context.Background(), time.Unix(0, 0), 10)
	assert.Error(t, err)
}
