package coerce

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// DefaultDecimalCommaMaxFraction treats "1,234" as 1.234. Set the policy to 2
// to read it as 1234 instead.
const DefaultDecimalCommaMaxFraction = 3

// Policy holds the tunable parts of numeric coercion.
type Policy struct {
	// DecimalCommaMaxFraction is the longest digit run after a single comma
	// (with no dot present) that is still read as a decimal comma. Longer
	// runs, or several commas, are thousands separators.
	DecimalCommaMaxFraction int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{DecimalCommaMaxFraction: DefaultDecimalCommaMaxFraction}
}

// Bounds of the staging NUMERIC columns. Larger exponents are also what makes
// rescaling a parsed value expensive.
const (
	maxIntegerDigits  = 131072
	maxFractionDigits = 16383
)

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

var decimalCleaner = strings.NewReplacer(
	"$", "",
	"€", "",
	"₽", "",
	"\u00a0", "", // no-break space
	"\u202f", "", // narrow no-break space, Sheets' ru_RU grouping
	" ", "",
)

// Decimal coerces a cell to a decimal using p.
func (p Policy) Decimal(v payload.Value) (decimal.Decimal, bool) {
	switch v.Kind() {
	case payload.KindNumber:
		lit, _ := v.Literal()
		d, err := decimal.NewFromString(lit)
		if err != nil || !storable(d) {
			return decimal.Decimal{}, false
		}
		return d, true
	case payload.KindString:
		s, _ := v.Str()
		return p.ParseDecimal(s)
	case payload.KindNull, payload.KindBool, payload.KindObject, payload.KindArray:
		return decimal.Decimal{}, false
	default:
		return decimal.Decimal{}, false
	}
}

// ParseDecimal parses human-formatted money such as "₽ 1 234,56",
// "$1,234.56" or "(100)".
func (p Policy) ParseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = decimalCleaner.Replace(s)
	s = p.normalizeSeparators(s)
	if s == "" {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil || !storable(d) {
		return decimal.Decimal{}, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// storable reports whether d fits a NUMERIC column. It only inspects the
// coefficient and exponent, so "1e999999999" is rejected without expanding it.
func storable(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	if exp < -maxFractionDigits {
		return false
	}
	return int64(d.NumDigits())+exp <= maxIntegerDigits
}

func (p Policy) normalizeSeparators(s string) string {
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// The right-most separator is the decimal point.
		if lastDot > lastComma {
			return strings.ReplaceAll(s, ",", "")
		}
		s = strings.ReplaceAll(s, ".", "")
		return strings.ReplaceAll(s, ",", ".")
	case lastComma >= 0:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) <= p.DecimalCommaMaxFraction {
			return parts[0] + "." + parts[1]
		}
		return strings.ReplaceAll(s, ",", "")
	default:
		return s
	}
}

// Integer coerces a cell through Decimal and truncates toward zero. Values
// outside the int64 range are absent.
func (p Policy) Integer(v payload.Value) (int64, bool) {
	d, ok := p.Decimal(v)
	if !ok {
		return 0, false
	}
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		return 0, false
	}
	whole := d.Truncate(0).BigInt()
	if !whole.IsInt64() {
		return 0, false
	}
	return whole.Int64(), true
}

// Decimal coerces with DefaultPolicy.
func Decimal(v payload.Value) (decimal.Decimal, bool) {
	return DefaultPolicy().Decimal(v)
}

// Integer coerces with DefaultPolicy.
func Integer(v payload.Value) (int64, bool) {
	return DefaultPolicy().Integer(v)
}
