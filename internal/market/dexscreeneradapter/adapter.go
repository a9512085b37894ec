package dexscreeneradapter

import (
	"context"
	"strings"
	"time"

	"tokenticker/internal/dexscreener"
	"tokenticker/internal/market"
)

type Config struct {
	Name string // display name, default: DexScreener
	// ChainID keeps only pairs on this chain when set (e.g., "solana").
	ChainID string
}

// Adapter exposes a DexScreener client as a market.Source.
type Adapter struct {
	cfg    Config
	client *dexscreener.Client
	now    func() time.Time
}

func New(cfg Config, client *dexscreener.Client) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "DexScreener"
	}
	return &Adapter{cfg: cfg, client: client, now: time.Now}
}

func (a *Adapter) Name() string { return a.cfg.Name }

// Pairs returns the token's pairs in upstream order; the first entry is the
// one DexScreener ranks highest.
func (a *Adapter) Pairs(ctx context.Context, tokenAddress string) ([]market.Pair, error) {
	raw, err := a.client.GetTokenPairs(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	out := make([]market.Pair, 0, len(raw))
	for _, p := range raw {
		if a.cfg.ChainID != "" && !strings.EqualFold(p.ChainID, a.cfg.ChainID) {
			continue
		}
		out = append(out, normalize(p, now))
	}
	return out, nil
}

func normalize(p dexscreener.Pair, receivedAt time.Time) market.Pair {
	mp := market.Pair{
		ChainID:     p.ChainID,
		DexID:       p.DexID,
		URL:         p.URL,
		PairAddress: p.PairAddress,
		BaseSymbol:  p.BaseToken.Symbol,
		QuoteSymbol: p.QuoteToken.Symbol,
		PriceUSD:    strings.TrimSpace(p.PriceUSD),
		MarketCap:   p.MarketCap,
		FDV:         p.FDV,
		ReceivedAt:  receivedAt,
	}
	if p.Volume != nil {
		mp.Volume24h = p.Volume.H24
	}
	if p.Liquidity != nil {
		mp.LiquidityUSD = p.Liquidity.USD
	}
	return mp
}
