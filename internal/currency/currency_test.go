package currency

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rates = map[int]float64{2023: 17.81, 2024: 18.325}

func newTestConverter(t *testing.T, policy Policy) *Converter {
	t.Helper()
	c, err := NewConverter(Options{RateTable: rates, FallbackRate: 17.0, Policy: policy})
	require.NoError(t, err)
	return c
}

func TestToUSD(t *testing.T) {
	c := newTestConverter(t, PolicyFallback)

	tests := []struct {
		name     string
		amount   *float64
		code     string
		rate     *float64
		year     *int
		want     *float64
		wantFrom RateSource
	}{
		{"usd identity", f(100), "USD", nil, i(2023), f(100), SourceIdentity},
		{"dollar sign", f(50), "$", f(20), nil, f(50), SourceIdentity},
		{"dls lowercase", f(50), "dls", nil, nil, f(50), SourceIdentity},
		{"row rate", f(200), "MXN", f(20), i(2023), f(10), SourceRow},
		{"zero row rate uses year table", f(178.1), "MXN", f(0), i(2023), f(178.1 / 17.81), SourceYearTable},
		{"negative row rate uses year table", f(183.25), "MXN", f(-1), i(2024), f(183.25 / 18.325), SourceYearTable},
		{"nan row rate uses year table", f(183.25), "MXN", f(math.NaN()), i(2024), f(183.25 / 18.325), SourceYearTable},
		{"year missing from table", f(100), "MXN", nil, i(1999), f(100.0 / 17.0), SourceFallback},
		{"no year", f(100), "", nil, nil, f(100.0 / 17.0), SourceFallback},
		{"nil amount", nil, "MXN", f(20), i(2023), nil, SourceNone},
		{"nil amount usd", nil, "USD", nil, nil, nil, SourceNone},
		{"negative amount keeps sign", f(-40), "MXN", f(20), nil, f(-2), SourceRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := c.ToUSD(tt.amount, tt.code, tt.rate, tt.year)
			assert.Equal(t, tt.wantFrom, src)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestToUSDFunction(t *testing.T) {
	got := ToUSD(f(100), "USD", nil, i(2023), rates, 17.0)
	require.NotNil(t, got)
	assert.Equal(t, 100.0, *got)

	got = ToUSD(f(100), "MXN", nil, i(1999), map[int]float64{}, 17.0)
	require.NotNil(t, got)
	assert.Equal(t, 100.0/17.0, *got)

	assert.Nil(t, ToUSD(nil, "MXN", nil, nil, nil, 17.0))
	assert.Nil(t, ToUSD(f(1), "MXN", nil, nil, nil, 0))
}

func TestStrictPolicy(t *testing.T) {
	c := newTestConverter(t, PolicyStrict)

	got, src := c.ToUSD(f(100), "MXN", nil, i(1999))
	assert.Nil(t, got)
	assert.Equal(t, SourceNone, src)

	got, src = c.ToUSD(f(178.1), "MXN", nil, i(2023))
	require.NotNil(t, got)
	assert.Equal(t, SourceYearTable, src)
}

func TestRateFor(t *testing.T) {
	c := newTestConverter(t, PolicyFallback)

	r, src := c.RateFor(i(2024))
	assert.Equal(t, 18.325, r)
	assert.Equal(t, SourceYearTable, src)

	r, src = c.RateFor(nil)
	assert.Equal(t, 17.0, r)
	assert.Equal(t, SourceFallback, src)
}

func TestNewConverterRejectsBadFallback(t *testing.T) {
	for _, rate := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		_, err := NewConverter(Options{FallbackRate: rate})
		assert.ErrorIs(t, err, ErrInvalidFallbackRate)
	}

	_, err := NewConverter(Options{FallbackRate: 17, Policy: "guess"})
	assert.Error(t, err)
}

func TestIsUSD(t *testing.T) {
	c, err := NewConverter(Options{FallbackRate: 17, USDTokens: []string{"USD", "Dólares"}})
	require.NoError(t, err)
	assert.True(t, c.IsUSD(" usd "))
	assert.True(t, c.IsUSD("DOLARES"))
	assert.False(t, c.IsUSD("MXN"))
	assert.False(t, c.IsUSD(""))
}

func TestRateSourceString(t *testing.T) {
	assert.Equal(t, "fallback", SourceFallback.String())
	assert.Equal(t, "none", RateSource(99).String())
}

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
