package feed

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tokenticker/internal/format"
	"tokenticker/internal/market"
)

// FetchErrorMessage is the user-facing error set when a poll fails.
const FetchErrorMessage = "Failed to fetch token data"

// Display values used before the first successful poll and whenever the
// upstream knows no pairs for the token.
const (
	FallbackMarketCap = "$7.1K"
	FallbackPrice     = "$0.000142"
	FallbackVolume24h = "$1.2K"
)

// Numeric substitutes for fields the first pair omits or reports as zero.
const (
	DefaultMarketCap = 7100.0
	DefaultPriceUSD  = "0.000142"
	DefaultVolume24h = 1200.0
)

// PriceDigits is the number of fraction digits shown for the USD price.
const PriceDigits = 6

// Snapshot is the display state of the token feed.
type Snapshot struct {
	MarketCap   string    `json:"marketCap"`
	Price       string    `json:"price"`
	Volume24h   string    `json:"volume24h"`
	IsLoading   bool      `json:"isLoading"`
	Error       string    `json:"error,omitempty"`
	PairAddress string    `json:"pairAddress,omitempty"`
	DexID       string    `json:"dexId,omitempty"`
	URL         string    `json:"url,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Initial is the snapshot a feed starts with.
func Initial() Snapshot {
	return Snapshot{
		MarketCap: FallbackMarketCap,
		Price:     FallbackPrice,
		Volume24h: FallbackVolume24h,
		IsLoading: true,
	}
}

// Fallback is the snapshot applied when the token has no trading pairs.
func Fallback(at time.Time) Snapshot {
	s := Initial()
	s.IsLoading = false
	s.UpdatedAt = at
	return s
}

// FromPair formats the authoritative pair into a snapshot.
func FromPair(p market.Pair, at time.Time) Snapshot {
	return Snapshot{
		MarketCap:   format.CompactUSD(orDefault(p.MarketCap, DefaultMarketCap)),
		Price:       format.FixedUSDDecimal(parsePrice(p.PriceUSD), PriceDigits),
		Volume24h:   format.CompactUSD(orDefault(p.Volume24h, DefaultVolume24h)),
		PairAddress: p.PairAddress,
		DexID:       p.DexID,
		URL:         p.URL,
		UpdatedAt:   at,
	}
}

// Failed keeps the display values of s and flags the fetch error.
func (s Snapshot) Failed(at time.Time) Snapshot {
	s.IsLoading = false
	s.Error = FetchErrorMessage
	s.UpdatedAt = at
	return s
}

func orDefault(v *float64, def float64) float64 {
	if v == nil || *v == 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	return *v
}

func parsePrice(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsZero() {
		return decimal.RequireFromString(DefaultPriceUSD)
	}
	return d
}
