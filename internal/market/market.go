package market

import (
	"context"
	"time"
)

// Pair is the normalized shape of one trading pair returned by a Source.
// PriceUSD is kept as the string the upstream sent to avoid float rounding
// before display formatting. Nil numeric fields mean the upstream omitted them.
type Pair struct {
	ChainID      string    `json:"chain_id"`
	DexID        string    `json:"dex_id"`
	URL          string    `json:"url"`
	PairAddress  string    `json:"pair_address"`
	BaseSymbol   string    `json:"base_symbol"`
	QuoteSymbol  string    `json:"quote_symbol"`
	PriceUSD     string    `json:"price_usd"`
	MarketCap    *float64  `json:"market_cap,omitempty"`
	FDV          *float64  `json:"fdv,omitempty"`
	Volume24h    *float64  `json:"volume_24h,omitempty"`
	LiquidityUSD *float64  `json:"liquidity_usd,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Source returns the trading pairs for a token. An empty, non-nil-error result
// means the upstream knows no pairs for the token.
type Source interface {
	Name() string
	Pairs(ctx context.Context, tokenAddress string) ([]Pair, error)
}
