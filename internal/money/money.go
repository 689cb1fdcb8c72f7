// =============================================================================
// Fradma Dashboard - Monetary Cleaner
// =============================================================================
//
// Parses amount cells exported by accounting software into nullable numbers.
//
// CLEANING OPERATIONS:
//   - Trim whitespace; null-sentinel tokens (#N/D, N/D, -, nan, true, ...) -> nil
//   - Strip "$", thousands separators and stray internal spaces
//   - Accounting negatives "(1,234.50)" and trailing minus "1234.50-"
//   - Both separators: the last one is the decimal mark ("1.234,50", "1,234.50")
//   - A lone decimal comma "1234,5" when no dot is present
//   - Exponents beyond float64 range ("1e99999") -> nil
//   - Anything else that does not parse as a decimal -> nil
//
// Clean never fails and never panics: the worst case is nil.
//
// =============================================================================

package money

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultSentinels are the tokens treated as "no value".
var DefaultSentinels = []string{
	"#N/D", "N/D", "", "-", "\u2014", "\u2013", "nan", "none", "null", "true", "false",
}

// maxExponent bounds the decimal exponent accepted by ParseDecimal. Anything
// larger is outside float64 range, and expanding it would cost time
// proportional to the exponent.
const maxExponent = 400

// Cleaner parses amount cells using a fixed sentinel set.
type Cleaner struct {
	sentinels map[string]struct{}
}

// NewCleaner builds a Cleaner. Sentinels match case-insensitively after
// trimming. A nil list selects DefaultSentinels.
func NewCleaner(sentinels []string) *Cleaner {
	if sentinels == nil {
		sentinels = DefaultSentinels
	}
	c := &Cleaner{sentinels: make(map[string]struct{}, len(sentinels)+1)}
	c.sentinels[""] = struct{}{}
	for _, s := range sentinels {
		c.sentinels[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return c
}

var defaultCleaner = NewCleaner(nil)

// Clean parses one cell with DefaultSentinels.
func Clean(raw string) *float64 {
	return defaultCleaner.Clean(raw)
}

// CleanAll parses a column with DefaultSentinels.
func CleanAll(raw []string) []*float64 {
	return defaultCleaner.CleanAll(raw)
}

// IsNull reports whether raw is empty or a sentinel, as opposed to text that
// merely failed to parse.
func (c *Cleaner) IsNull(raw string) bool {
	_, ok := c.sentinels[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

// Clean returns the numeric value of raw, or nil.
func (c *Cleaner) Clean(raw string) *float64 {
	d, ok := c.ParseDecimal(raw)
	if !ok {
		return nil
	}
	v := d.InexactFloat64()
	if math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// CleanAll parses every cell of a column, preserving positions.
func (c *Cleaner) CleanAll(raw []string) []*float64 {
	out := make([]*float64, len(raw))
	for i, cell := range raw {
		out[i] = c.Clean(cell)
	}
	return out
}

// ParseDecimal returns the exact decimal value of raw. The boolean is false
// for sentinels and unparseable text.
func (c *Cleaner) ParseDecimal(raw string) (decimal.Decimal, bool) {
	if c.IsNull(raw) {
		return decimal.Zero, false
	}

	s, negative := stripNoise(raw)
	if s == "" || c.IsNull(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.Exponent() > maxExponent || d.Exponent() < -maxExponent {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// stripNoise removes currency symbols, separators and sign decorations. The
// returned flag is true when the amount was written as an accounting
// negative.
func stripNoise(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	negative := false

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
		negative = true
	}

	s = strings.Map(func(r rune) rune {
		if r == '$' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if len(s) > 1 && strings.HasSuffix(s, "-") && !strings.HasPrefix(s, "-") {
		s = strings.TrimSuffix(s, "-")
		negative = !negative
	}

	return separators(s), negative
}

// separators rewrites thousands and decimal marks into plain decimal form.
// When both "." and "," appear the last one is the decimal mark and the
// other is a thousands separator.
func separators(s string) string {
	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')
	switch {
	case dot >= 0 && comma > dot:
		return strings.ReplaceAll(s[:comma], ".", "") + "." + s[comma+1:]
	case comma >= 0 && dot > comma:
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		return strings.ReplaceAll(decimalComma(s), ",", "")
	}
	return s
}

// decimalComma rewrites "1234,5" and "1234,56" as "1234.5" / "1234.56".
// Only a single comma followed by one or two digits at the end is read as a
// decimal separator; "1,234" stays a thousands group.
func decimalComma(s string) string {
	if strings.Count(s, ",") != 1 {
		return s
	}
	i := strings.IndexByte(s, ',')
	tail := s[i+1:]
	if len(tail) == 0 || len(tail) > 2 {
		return s
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return s
		}
	}
	return s[:i] + "." + tail
}
