package scorer

import (
	"context"
	"sync"
)

// PassCache memoizes scores by signal id for the lifetime of one
// evaluation pass, so multiple strategies gating on the same signal
// share a single external call. It is an explicit value handed to the
// driver, never package state; build a fresh one per pass.
type PassCache struct {
	scorer  Scorer
	mu      sync.Mutex
	entries map[string]*scoreEntry
}

type scoreEntry struct {
	ready chan struct{}
	prob  float64
	err   error
}

func NewPassCache(scorer Scorer) *PassCache {
	return &PassCache{
		scorer:  scorer,
		entries: make(map[string]*scoreEntry),
	}
}

// Score returns the cached probability for req.SignalID or performs
// the external call once. Failures are cached too: a signal that
// scored Unavailable stays Unavailable for the whole pass rather than
// retrying per strategy.
func (c *PassCache) Score(ctx context.Context, req ScoreRequest) (float64, error) {
	c.mu.Lock()
	entry, ok := c.entries[req.SignalID]
	if !ok {
		entry = &scoreEntry{ready: make(chan struct{})}
		c.entries[req.SignalID] = entry
		c.mu.Unlock()

		entry.prob, entry.err = c.scorer.Score(ctx, req)
		close(entry.ready)
		return entry.prob, entry.err
	}
	c.mu.Unlock()

	select {
	case <-entry.ready:
		return entry.prob, entry.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
