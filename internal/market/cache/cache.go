package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"tokenticker/internal/market"
)

// entry stores cached pairs for a single token with expiry.
type entry struct {
	expiresAt time.Time
	pairs     []market.Pair
}

// ErrStale marks pairs served from an expired entry after a failed refresh.
var ErrStale = errors.New("cache: serving stale pairs")

// Source caches results per token address for a TTL.
// When a refresh fails and an entry (even expired) exists, the stale pairs are
// returned together with an error wrapping both ErrStale and the cause.
type Source struct {
	S        market.Source
	TTL      time.Duration
	MaxItems int
	Clock    clockwork.Clock // defaults to the real clock

	mu    sync.RWMutex
	items map[string]entry // key: token address
}

func (c *Source) Name() string { return c.S.Name() }

func (c *Source) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}

// Pairs returns pairs for the token using the cache when valid.
func (c *Source) Pairs(ctx context.Context, tokenAddress string) ([]market.Pair, error) {
	if c.TTL <= 0 {
		return c.S.Pairs(ctx, tokenAddress)
	}

	now := c.now()

	c.mu.RLock()
	e, ok := c.items[tokenAddress]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return clonePairs(e.pairs), nil
	}

	fresh, err := c.S.Pairs(ctx, tokenAddress)
	if err != nil {
		if ok {
			return clonePairs(e.pairs), fmt.Errorf("%w: %w", ErrStale, err)
		}
		return nil, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[tokenAddress] = entry{expiresAt: now.Add(c.TTL), pairs: clonePairs(fresh)}
	// best-effort cap: drop expired entries first, then arbitrary ones
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		for k, v := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			if k != tokenAddress && now.After(v.expiresAt) {
				delete(c.items, k)
			}
		}
		for k := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			if k != tokenAddress {
				delete(c.items, k)
			}
		}
	}
	c.mu.Unlock()

	return fresh, nil
}

// Len reports the number of cached tokens.
func (c *Source) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func clonePairs(in []market.Pair) []market.Pair {
	if in == nil {
		return nil
	}
	out := make([]market.Pair, len(in))
	copy(out, in)
	return out
}
