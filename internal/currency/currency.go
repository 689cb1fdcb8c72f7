// =============================================================================
// Fradma Dashboard - Currency Converter
// =============================================================================
//
// Converts local-currency amounts to USD.
//
// RESOLUTION ORDER:
//   1. USD-equivalent currency token (USD, $, DLS, ...) -> amount unchanged
//   2. The row's own exchange rate, when finite and positive
//   3. The year table rate for the row's year, when positive
//   4. The fallback rate (PolicyFallback) or nil (PolicyStrict)
//
// A nil amount always converts to nil. Every conversion reports which step
// produced it so callers can count fallback conversions.
//
// =============================================================================

package currency

import (
	"errors"
	"fmt"
	"math"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/normalize"
)

// Policy decides what happens when no exact rate is available.
type Policy string

const (
	// PolicyFallback converts with the fallback rate.
	PolicyFallback Policy = "fallback"

	// PolicyStrict yields a nil amount.
	PolicyStrict Policy = "strict"
)

// RateSource identifies the step that produced a conversion.
type RateSource int

const (
	SourceNone RateSource = iota
	SourceIdentity
	SourceRow
	SourceYearTable
	SourceFallback
)

func (s RateSource) String() string {
	switch s {
	case SourceIdentity:
		return "identity"
	case SourceRow:
		return "row"
	case SourceYearTable:
		return "year_table"
	case SourceFallback:
		return "fallback"
	default:
		return "none"
	}
}

// DefaultUSDTokens are currency codes treated as USD.
var DefaultUSDTokens = []string{"USD", "$", "DLS"}

// ErrInvalidFallbackRate is returned when the fallback rate is not positive.
var ErrInvalidFallbackRate = errors.New("fallback rate must be positive")

// Options configures a Converter.
type Options struct {
	RateTable    map[int]float64
	FallbackRate float64
	USDTokens    []string
	Policy       Policy
}

// Converter converts amounts to USD.
type Converter struct {
	rates     map[int]float64
	fallback  float64
	usdTokens map[string]struct{}
	policy    Policy
}

// NewConverter validates opts and builds a Converter.
func NewConverter(opts Options) (*Converter, error) {
	if !(opts.FallbackRate > 0) || math.IsInf(opts.FallbackRate, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFallbackRate, opts.FallbackRate)
	}
	if opts.Policy == "" {
		opts.Policy = PolicyFallback
	}
	if opts.Policy != PolicyFallback && opts.Policy != PolicyStrict {
		return nil, fmt.Errorf("unknown conversion policy %q", opts.Policy)
	}
	tokens := opts.USDTokens
	if len(tokens) == 0 {
		tokens = DefaultUSDTokens
	}

	c := &Converter{
		rates:     make(map[int]float64, len(opts.RateTable)),
		fallback:  opts.FallbackRate,
		usdTokens: make(map[string]struct{}, len(tokens)),
		policy:    opts.Policy,
	}
	for year, rate := range opts.RateTable {
		c.rates[year] = rate
	}
	for _, tok := range tokens {
		c.usdTokens[normalize.Header(tok)] = struct{}{}
	}
	return c, nil
}

// IsUSD reports whether code denotes a USD-equivalent currency.
func (c *Converter) IsUSD(code string) bool {
	n := normalize.Header(code)
	if n == "" {
		return false
	}
	_, ok := c.usdTokens[n]
	return ok
}

// ToUSD converts amount. currencyCode may be empty, rate and year may be nil.
func (c *Converter) ToUSD(amount *float64, currencyCode string, rate *float64, year *int) (*float64, RateSource) {
	if amount == nil {
		return nil, SourceNone
	}
	if c.IsUSD(currencyCode) {
		v := *amount
		return &v, SourceIdentity
	}
	if rate != nil && usable(*rate) {
		v := *amount / *rate
		return &v, SourceRow
	}
	r, src := c.RateFor(year)
	if src == SourceNone {
		return nil, SourceNone
	}
	v := *amount / r
	return &v, src
}

// RateFor returns the table rate for year, or the fallback rate. Under
// PolicyStrict a missing year yields SourceNone.
func (c *Converter) RateFor(year *int) (float64, RateSource) {
	if year != nil {
		if r, ok := c.rates[*year]; ok && usable(r) {
			return r, SourceYearTable
		}
	}
	if c.policy == PolicyStrict {
		return 0, SourceNone
	}
	return c.fallback, SourceFallback
}

// FallbackRate returns the configured fallback rate.
func (c *Converter) FallbackRate() float64 {
	return c.fallback
}

// ToUSD is the single-call form of Converter.ToUSD under PolicyFallback
// with DefaultUSDTokens. An invalid fallback rate yields nil.
func ToUSD(amount *float64, currencyCode string, rate *float64, year *int, table map[int]float64, fallback float64) *float64 {
	c, err := NewConverter(Options{RateTable: table, FallbackRate: fallback})
	if err != nil {
		return nil
	}
	v, _ := c.ToUSD(amount, currencyCode, rate, year)
	return v
}

func usable(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0)
}
