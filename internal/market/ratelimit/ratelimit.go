// Package ratelimit gates market.Source calls with golang.org/x/time/rate limiters.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tokenticker/internal/market"
)

// PerMinute builds a limiter from a requests-per-minute budget.
func PerMinute(rpm, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// TokenBucketSource wraps a Source and gates calls using a token bucket.
type TokenBucketSource struct {
	S market.Source
	L *rate.Limiter
}

func (t *TokenBucketSource) Name() string { return t.S.Name() }

func (t *TokenBucketSource) Pairs(ctx context.Context, tokenAddress string) ([]market.Pair, error) {
	if t.L != nil {
		if err := t.L.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return t.S.Pairs(ctx, tokenAddress)
}

// MinInterval wraps a source and enforces a minimum time between calls.
// Concurrent calls queue on the limiter, or return early if the context is canceled.
type MinInterval struct {
	S        market.Source
	Interval time.Duration

	once sync.Once
	lim  *rate.Limiter
}

func (m *MinInterval) Name() string { return m.S.Name() }

func (m *MinInterval) Pairs(ctx context.Context, tokenAddress string) ([]market.Pair, error) {
	if m.Interval > 0 {
		m.once.Do(func() { m.lim = rate.NewLimiter(rate.Every(m.Interval), 1) })
		if err := m.lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return m.S.Pairs(ctx, tokenAddress)
}
