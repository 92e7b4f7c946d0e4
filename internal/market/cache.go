package market

import (
	"context"

	"github.com/hiiliketocode/polycopy-sub018/internal/model"
	"github.com/hiiliketocode/polycopy-sub018/internal/pkg/apperrors"
)

// PassCache memoizes market lookups for the lifetime of one pass. A
// batch typically references far fewer markets than signals, and every
// strategy in the pass sees the same snapshot. Not safe for use across
// passes; build a fresh one per run.
//
// Lookups are serialized per market id so concurrent strategies do not
// duplicate the upstream call for the same market.
type PassCache struct {
	resolver Resolver
	entries  map[string]*cacheEntry
	locks    chan struct{}
}

type cacheEntry struct {
	ready chan struct{}
	snap  *model.MarketSnapshot
	err   error
}

func NewPassCache(resolver Resolver) *PassCache {
	locks := make(chan struct{}, 1)
	locks <- struct{}{}
	return &PassCache{
		resolver: resolver,
		entries:  make(map[string]*cacheEntry),
		locks:    locks,
	}
}

func (c *PassCache) GetMarket(ctx context.Context, marketID string) (*model.MarketSnapshot, error) {
	select {
	case <-c.locks:
	case <-ctx.Done():
		return nil, apperrors.Transient("market cache wait", ctx.Err())
	}
	entry, ok := c.entries[marketID]
	if !ok {
		entry = &cacheEntry{ready: make(chan struct{})}
		c.entries[marketID] = entry
		c.locks <- struct{}{}

		entry.snap, entry.err = c.resolver.GetMarket(ctx, marketID)
		close(entry.ready)
		return entry.snap, entry.err
	}
	c.locks <- struct{}{}

	select {
	case <-entry.ready:
		return entry.snap, entry.err
	case <-ctx.Done():
		return nil, apperrors.Transient("market cache wait", ctx.Err())
	}
}
