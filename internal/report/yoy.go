package report

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// ErrYearNotFound is returned when a comparison names a year with no sales.
var ErrYearNotFound = errors.New("year not present in data")

// YearRow is one year of the year x month pivot. Months[0] is January.
// Months without sales are zero.
type YearRow struct {
	Year   int
	Months [12]decimal.Decimal
	Total  decimal.Decimal
}

// YearMonthPivot is the year x month sales table.
type YearMonthPivot struct {
	// Years are sorted ascending.
	Years []YearRow

	// Undated counts rows without a year or month.
	Undated int

	// NullAmounts counts rows whose amount is null.
	NullAmounts int
}

// Year returns the row for year.
func (p *YearMonthPivot) Year(year int) (YearRow, bool) {
	i, ok := slices.BinarySearchFunc(p.Years, year, func(r YearRow, y int) int { return r.Year - y })
	if !ok {
		return YearRow{}, false
	}
	return p.Years[i], true
}

// PivotYearMonth sums amounts per year and month.
func PivotYearMonth(rows []types.CanonicalRow) *YearMonthPivot {
	pivot := &YearMonthPivot{}
	byYear := make(map[int]*YearRow)

	for _, row := range rows {
		year, okYear := yearOf(row)
		month, okMonth := monthOf(row)
		if !okYear || !okMonth {
			pivot.Undated++
			continue
		}
		amount, ok := amountOf(row)
		if !ok {
			pivot.NullAmounts++
			continue
		}

		yr, exists := byYear[year]
		if !exists {
			yr = &YearRow{Year: year}
			byYear[year] = yr
		}
		yr.Months[month-1] = yr.Months[month-1].Add(amount)
		yr.Total = yr.Total.Add(amount)
	}

	for _, yr := range byYear {
		pivot.Years = append(pivot.Years, *yr)
	}
	slices.SortFunc(pivot.Years, func(a, b YearRow) int { return a.Year - b.Year })
	return pivot
}

// MonthDelta compares one month of two years.
type MonthDelta struct {
	// Month is 1..12, or 0 for the yearly total.
	Month      int
	Base       decimal.Decimal
	Target     decimal.Decimal
	Difference decimal.Decimal

	// Variation is Difference / Base in percent, rounded to two places.
	// Nil when Base is zero.
	Variation *float64
}

// Comparison is a two-year month-by-month comparison.
type Comparison struct {
	BaseYear   int
	TargetYear int
	Months     [12]MonthDelta
	Total      MonthDelta
}

// CompareYears compares target against base.
func CompareYears(pivot *YearMonthPivot, base, target int) (*Comparison, error) {
	b, ok := pivot.Year(base)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrYearNotFound, base)
	}
	t, ok := pivot.Year(target)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrYearNotFound, target)
	}

	cmp := &Comparison{BaseYear: base, TargetYear: target}
	for m := 0; m < 12; m++ {
		cmp.Months[m] = delta(m+1, b.Months[m], t.Months[m])
	}
	cmp.Total = delta(0, b.Total, t.Total)
	return cmp, nil
}

func delta(month int, base, target decimal.Decimal) MonthDelta {
	diff := target.Sub(base)
	d := MonthDelta{Month: month, Base: base, Target: target, Difference: diff}
	if !base.IsZero() {
		v := diff.Div(base).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		d.Variation = &v
	}
	return d
}
