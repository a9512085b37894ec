package dexscreeneradapter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tokenticker/internal/dexscreener"
)

const body = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {"chainId": "solana", "dexId": "pumpswap", "pairAddress": "p1", "url": "https://dexscreener.com/solana/p1",
     "baseToken": {"symbol": "MINT"}, "quoteToken": {"symbol": "SOL"},
     "priceUsd": " 0.0001234 ", "marketCap": 123400, "fdv": 130000,
     "volume": {"h24": 2345.67}, "liquidity": {"usd": 10432.55}},
    {"chainId": "base", "dexId": "uniswap", "pairAddress": "p2", "priceUsd": "0.00012"},
    {"chainId": "solana", "dexId": "raydium", "pairAddress": "p3", "priceUsd": "0.000123"}
  ]
}`

func newTestAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := dexscreener.NewClient(dexscreener.WithBaseURL(srv.URL), dexscreener.WithHTTPClient(srv.Client()))
	a := New(cfg, client)
	a.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)) }
	return a
}

func TestAdapter_NormalizesPairs(t *testing.T) {
	a := newTestAdapter(t, Config{})
	require.Equal(t, "DexScreener", a.Name())

	pairs, err := a.Pairs(t.Context(), "tok")
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	first := pairs[0]
	require.Equal(t, "p1", first.PairAddress)
	require.Equal(t, "pumpswap", first.DexID)
	require.Equal(t, "MINT", first.BaseSymbol)
	require.Equal(t, "SOL", first.QuoteSymbol)
	require.Equal(t, "0.0001234", first.PriceUSD)
	require.InEpsilon(t, 123400.0, *first.MarketCap, 1e-9)
	require.InEpsilon(t, 2345.67, *first.Volume24h, 1e-9)
	require.InEpsilon(t, 10432.55, *first.LiquidityUSD, 1e-9)
	require.Equal(t, time.UTC, first.ReceivedAt.Location())

	require.Nil(t, pairs[1].MarketCap)
	require.Nil(t, pairs[1].Volume24h)
}

func TestAdapter_ChainFilter(t *testing.T) {
	a := newTestAdapter(t, Config{Name: "dex", ChainID: "SOLANA"})

	pairs, err := a.Pairs(t.Context(), "tok")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, "p1", pairs[0].PairAddress)
	require.Equal(t, "p3", pairs[1].PairAddress)
}
