package market

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/logger"
)

const (
	reconnBaseDelay = 1 * time.Second
	reconnMaxDelay  = 30 * time.Second
	pingPeriod      = 15 * time.Second
)

// PriceStream keeps the last traded price per outcome token over the
// exchange's market websocket. The scorer uses it for "current outcome
// price" context; when a token has no live tick the caller falls back
// to the metadata snapshot price.
type PriceStream struct {
	url    string
	conn   *websocket.Conn
	mu     sync.RWMutex
	prices map[string]lastPrice
	subs   map[string]struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

type lastPrice struct {
	price float64
	at    time.Time
}

func NewPriceStream(url string) *PriceStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &PriceStream{
		url:    url,
		prices: make(map[string]lastPrice),
		subs:   make(map[string]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the connection loop in a background goroutine.
func (s *PriceStream) Start() {
	if s.url == "" {
		return
	}
	go s.runLoop()
}

func (s *PriceStream) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Subscribe registers token ids of interest. New ids are pushed on the
// live connection; the full set is replayed after every reconnect.
func (s *PriceStream) Subscribe(tokenIDs []string) {
	s.mu.Lock()
	var added []string
	for _, id := range tokenIDs {
		if _, ok := s.subs[id]; !ok {
			s.subs[id] = struct{}{}
			added = append(added, id)
		}
	}
	conn := s.conn
	s.mu.Unlock()

	if len(added) > 0 && conn != nil {
		s.sendSubscribe(conn, added)
	}
}

// LastPrice returns the most recent tick for a token. Ticks older than
// maxAge are treated as absent.
func (s *PriceStream) LastPrice(tokenID string, maxAge time.Duration) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lp, ok := s.prices[tokenID]
	if !ok {
		return 0, false
	}
	if maxAge > 0 && time.Since(lp.at) > maxAge {
		return 0, false
	}
	return lp.price, true
}

func (s *PriceStream) runLoop() {
	delay := reconnBaseDelay
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			logger.Warn("price stream dial failed", "error", err, "retry_in", delay.String())
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return
			}
			if delay *= 2; delay > reconnMaxDelay {
				delay = reconnMaxDelay
			}
			continue
		}
		delay = reconnBaseDelay

		s.mu.Lock()
		s.conn = conn
		pending := make([]string, 0, len(s.subs))
		for id := range s.subs {
			pending = append(pending, id)
		}
		s.mu.Unlock()

		if len(pending) > 0 {
			s.sendSubscribe(conn, pending)
		}

		s.readUntilClosed(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}
}

func (s *PriceStream) readUntilClosed(conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-done:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Warn("price stream read failed", "error", err)
			return
		}
		s.handleMessage(msg)
	}
}

func (s *PriceStream) sendSubscribe(conn *websocket.Conn, tokenIDs []string) {
	msg := map[string]interface{}{
		"type":       "market",
		"assets_ids": tokenIDs,
	}
	if err := conn.WriteJSON(msg); err != nil {
		logger.Warn("price stream subscribe failed", "error", err)
	}
}

type tickEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
}

func (s *PriceStream) handleMessage(raw []byte) {
	var events []tickEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		var single tickEvent
		if err := json.Unmarshal(raw, &single); err != nil {
			return
		}
		events = []tickEvent{single}
	}
	now := time.Now()
	for _, ev := range events {
		if ev.EventType != "last_trade_price" || ev.AssetID == "" {
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.prices[ev.AssetID] = lastPrice{price: price, at: now}
		s.mu.Unlock()
	}
}
