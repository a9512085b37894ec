package dexscreener

// TokenPairsResponse is the body of /latest/dex/tokens/{address}.
type TokenPairsResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is one trading pair as DexScreener reports it. Numeric fields are
// pointers because the API omits them for young or illiquid pairs.
type Pair struct {
	ChainID       string     `json:"chainId"`
	DexID         string     `json:"dexId"`
	URL           string     `json:"url"`
	PairAddress   string     `json:"pairAddress"`
	Labels        []string   `json:"labels,omitempty"`
	BaseToken     Token      `json:"baseToken"`
	QuoteToken    Token      `json:"quoteToken"`
	PriceNative   string     `json:"priceNative"`
	PriceUSD      string     `json:"priceUsd"`
	Txns          *Txns      `json:"txns,omitempty"`
	Volume        *Windowed  `json:"volume,omitempty"`
	PriceChange   *Windowed  `json:"priceChange,omitempty"`
	Liquidity     *Liquidity `json:"liquidity,omitempty"`
	FDV           *float64   `json:"fdv,omitempty"`
	MarketCap     *float64   `json:"marketCap,omitempty"`
	PairCreatedAt int64      `json:"pairCreatedAt,omitempty"`
}

type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Windowed holds a value per rolling window (5m, 1h, 6h, 24h).
type Windowed struct {
	M5  *float64 `json:"m5,omitempty"`
	H1  *float64 `json:"h1,omitempty"`
	H6  *float64 `json:"h6,omitempty"`
	H24 *float64 `json:"h24,omitempty"`
}

type TxnCount struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type Txns struct {
	M5  TxnCount `json:"m5"`
	H1  TxnCount `json:"h1"`
	H6  TxnCount `json:"h6"`
	H24 TxnCount `json:"h24"`
}

type Liquidity struct {
	USD   *float64 `json:"usd,omitempty"`
	Base  *float64 `json:"base,omitempty"`
	Quote *float64 `json:"quote,omitempty"`
}
