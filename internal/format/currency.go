// Package format renders USD amounts the way the landing page displays them
// (en-US currency, compact notation for magnitudes, fixed precision for unit prices).
package format

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// groupSep is the en-US thousands separator as x/text renders it.
var groupSep = strings.Trim(
	message.NewPrinter(language.AmericanEnglish).Sprint(number.Decimal(1000)), "0123456789")

// Compact values only group integer parts of five or more digits ($5000.0T).
const compactMinGrouping = 5

var compactUnits = []struct {
	exp    int32
	suffix string
}{
	{0, ""},
	{3, "K"},
	{6, "M"},
	{9, "B"},
	{12, "T"},
}

// CompactUSD formats v in compact notation with exactly one fraction digit,
// e.g. 7100 -> "$7.1K", 999 -> "$999.0", 999950 -> "$1.0M".
func CompactUSD(v float64) string {
	d, neg := prepare(v)

	unit := 0
	for i := len(compactUnits) - 1; i > 0; i-- {
		if d.GreaterThanOrEqual(decimal.New(1, compactUnits[i].exp)) {
			unit = i
			break
		}
	}
	mant := d.Shift(-compactUnits[unit].exp).Round(1)
	// rounding can carry into the next unit (999.95K -> 1M)
	if unit < len(compactUnits)-1 && mant.GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		unit++
		mant = d.Shift(-compactUnits[unit].exp).Round(1)
	}

	return sign(neg, mant) + "$" + render(mant, 1, compactMinGrouping) + compactUnits[unit].suffix
}

// FixedUSD formats v with exactly digits fraction digits and thousands
// grouping, e.g. FixedUSD(0.0001234, 6) -> "$0.000123".
func FixedUSD(v float64, digits int32) string {
	d, neg := prepare(v)
	if neg {
		d = d.Neg()
	}
	return FixedUSDDecimal(d, digits)
}

// FixedUSDDecimal is FixedUSD for values that are already decimals, such as
// prices parsed from upstream strings.
func FixedUSDDecimal(d decimal.Decimal, digits int32) string {
	neg := d.IsNegative()
	r := d.Abs().Round(digits)
	return sign(neg, r) + "$" + render(r, digits, 1)
}

// prepare returns |v| as a decimal and whether v was negative. Non-finite
// values become zero.
func prepare(v float64) (decimal.Decimal, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(math.Abs(v)), v < 0
}

func sign(neg bool, rounded decimal.Decimal) string {
	if neg && !rounded.IsZero() {
		return "-"
	}
	return ""
}

// render prints a non-negative decimal with exactly digits fraction digits
// (half away from zero). Integer parts with at least minGrouping digits are
// grouped in threes; there is no upper bound on their length.
func render(d decimal.Decimal, digits int32, minGrouping int) string {
	intPart, frac, _ := strings.Cut(d.StringFixed(digits), ".")
	grouped := intPart
	if len(intPart) >= max(minGrouping, 4) {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead == 0 {
			lead = 3
		}
		b.WriteString(intPart[:lead])
		for i := lead; i < len(intPart); i += 3 {
			b.WriteString(groupSep)
			b.WriteString(intPart[i : i+3])
		}
		grouped = b.String()
	}
	if digits <= 0 {
		return grouped
	}
	return grouped + "." + frac
}
