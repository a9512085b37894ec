// Package sources assembles the configured market.Source chain:
// DexScreener client, then rate limiting, then the per-token cache.
package sources

import (
	"time"

	"tokenticker/internal/config"
	"tokenticker/internal/dexscreener"
	"tokenticker/internal/httpx"
	"tokenticker/internal/market"
	"tokenticker/internal/market/cache"
	"tokenticker/internal/market/dexscreeneradapter"
	"tokenticker/internal/market/ratelimit"
)

// Build returns the DexScreener source for cfg wrapped with the limiter and cache it asks for.
func Build(cfg config.Token, hc *httpx.Client) market.Source {
	client := dexscreener.NewClient(
		dexscreener.WithBaseURL(cfg.Endpoint),
		dexscreener.WithHTTPClient(hc),
	)
	var s market.Source = dexscreeneradapter.New(dexscreeneradapter.Config{Name: "DexScreener", ChainID: cfg.ChainID}, client)
	return Wrap(s, cfg)
}

// Wrap applies rate limiting and caching to s. Token bucket wins over
// min-interval when both are configured.
func Wrap(s market.Source, cfg config.Token) market.Source {
	if cfg.MaxRequestsPerMinute > 0 {
		s = &ratelimit.TokenBucketSource{S: s, L: ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst)}
	} else if cfg.MinRequestIntervalSec > 0 {
		s = &ratelimit.MinInterval{S: s, Interval: time.Duration(cfg.MinRequestIntervalSec) * time.Second}
	}
	if cfg.CacheTTLSeconds > 0 {
		s = &cache.Source{S: s, TTL: time.Duration(cfg.CacheTTLSeconds) * time.Second, MaxItems: cfg.CacheMaxItems}
	}
	return s
}
