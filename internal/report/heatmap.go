package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// Period is a heatmap time granularity.
type Period string

const (
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
	PeriodCustom    Period = "custom"
)

// ParsePeriod accepts the English names and the dashboard's Spanish ones.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "mensual", "":
		return PeriodMonthly, nil
	case "quarterly", "trimestral":
		return PeriodQuarterly, nil
	case "yearly", "anual":
		return PeriodYearly, nil
	case "custom", "rango":
		return PeriodCustom, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Lag is the number of periods growth compares against: the same period of
// the previous year. Custom ranges have no growth.
func (p Period) Lag() int {
	switch p {
	case PeriodMonthly:
		return 12
	case PeriodQuarterly:
		return 4
	case PeriodYearly:
		return 1
	}
	return 0
}

// key returns the period label and its ordinal; consecutive periods have
// consecutive ordinals.
func (p Period) key(t time.Time) (string, int) {
	switch p {
	case PeriodQuarterly:
		q := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%dQ%d", t.Year(), q), t.Year()*4 + q - 1
	case PeriodYearly:
		return fmt.Sprintf("%d", t.Year()), t.Year()
	case PeriodCustom:
		return "custom", 0
	}
	return t.Format("Jan-2006"), t.Year()*12 + int(t.Month()) - 1
}

// HeatmapOptions configures BuildHeatmap.
type HeatmapOptions struct {
	Period Period

	// From and To bound the dates used, inclusive. Either may be nil.
	From, To *time.Time

	// Lines restricts the product lines. Empty means all.
	Lines []string

	// TopN keeps the N lines with the highest visible total. Zero keeps all.
	TopN int

	// Min and Max mask cells outside [Min, Max].
	Min, Max *float64

	// Growth computes growth against the period Lag periods earlier.
	Growth bool
}

// Growth is a cell's change against the lagged period.
type Growth struct {
	// Pct is the change in percent. Nil when New or when there is nothing
	// to compare against.
	Pct *float64

	// New marks a line that had no sales in the lagged period and has
	// sales now.
	New bool
}

// Cell is one period x line sum.
type Cell struct {
	Value decimal.Decimal

	// Masked cells fall outside the Min/Max range and are excluded from
	// totals and ranking.
	Masked bool

	Growth *Growth
}

// Heatmap is the period x product line table.
type Heatmap struct {
	Period Period

	// Periods are the row labels in chronological order.
	Periods []string

	// Lines are the column labels, highest total first.
	Lines []string

	// Cells is indexed [period][line].
	Cells [][]Cell

	// LineTotals are the visible totals per line.
	LineTotals []decimal.Decimal

	// NewLines lists lines marked New in at least one period.
	NewLines []string

	// Undated and NullAmounts count rows left out.
	Undated     int
	NullAmounts int
}

// BuildHeatmap computes the heatmap.
func BuildHeatmap(rows []types.CanonicalRow, opts HeatmapOptions) (*Heatmap, error) {
	period := opts.Period
	if period == "" {
		period = PeriodMonthly
	}
	if period.Lag() == 0 && period != PeriodCustom {
		return nil, fmt.Errorf("unknown period %q", period)
	}

	hm := &Heatmap{Period: period}
	wanted := make(map[string]bool, len(opts.Lines))
	for _, l := range opts.Lines {
		wanted[strings.TrimSpace(l)] = true
	}

	sums := make(map[int]map[string]decimal.Decimal)
	labels := make(map[int]string)
	lineSet := make(map[string]bool)

	for _, row := range rows {
		if row.Date == nil {
			hm.Undated++
			continue
		}
		if opts.From != nil && row.Date.Before(*opts.From) {
			continue
		}
		if opts.To != nil && row.Date.After(*opts.To) {
			continue
		}
		line := label(row.ProductLine)
		if len(wanted) > 0 && !wanted[line] {
			continue
		}
		amount, ok := amountOf(row)
		if !ok {
			hm.NullAmounts++
			continue
		}

		name, ordinal := period.key(*row.Date)
		if period == PeriodCustom {
			name = customLabel(opts.From, opts.To)
		}
		labels[ordinal] = name
		if sums[ordinal] == nil {
			sums[ordinal] = make(map[string]decimal.Decimal)
		}
		sums[ordinal][line] = sums[ordinal][line].Add(amount)
		lineSet[line] = true
	}

	ordinals := make([]int, 0, len(sums))
	for o := range sums {
		ordinals = append(ordinals, o)
	}
	slices.Sort(ordinals)

	// Rank lines by their visible (unmasked) total.
	totals := make(map[string]decimal.Decimal)
	for _, o := range ordinals {
		for line, v := range sums[o] {
			if !masked(v, opts.Min, opts.Max) {
				totals[line] = totals[line].Add(v)
			}
		}
	}
	lines := make([]string, 0, len(lineSet))
	for line := range lineSet {
		lines = append(lines, line)
	}
	slices.SortFunc(lines, func(a, b string) int {
		if c := totals[b].Cmp(totals[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if opts.TopN > 0 && len(lines) > opts.TopN {
		lines = lines[:opts.TopN]
	}

	lag := period.Lag()
	newLines := make(map[string]bool)

	for _, o := range ordinals {
		hm.Periods = append(hm.Periods, labels[o])
		cells := make([]Cell, len(lines))
		for j, line := range lines {
			v := sums[o][line]
			c := Cell{Value: v, Masked: masked(v, opts.Min, opts.Max)}
			if opts.Growth && lag > 0 && !c.Masked {
				if prevPeriod, ok := sums[o-lag]; ok {
					c.Growth = growth(prevPeriod[line], v)
					if c.Growth != nil && c.Growth.New {
						newLines[line] = true
					}
				}
			}
			cells[j] = c
		}
		hm.Cells = append(hm.Cells, cells)
	}

	hm.Lines = lines
	hm.LineTotals = make([]decimal.Decimal, len(lines))
	for j, line := range lines {
		hm.LineTotals[j] = totals[line]
		if newLines[line] {
			hm.NewLines = append(hm.NewLines, line)
		}
	}

	return hm, nil
}

func masked(v decimal.Decimal, lo, hi *float64) bool {
	f := v.InexactFloat64()
	return (lo != nil && f < *lo) || (hi != nil && f > *hi)
}

// growth compares cur against prev. A line going from zero to positive
// sales is New; zero to zero or negative has no growth.
func growth(prev, cur decimal.Decimal) *Growth {
	if prev.IsZero() {
		if cur.IsPositive() {
			return &Growth{New: true}
		}
		return nil
	}
	return &Growth{Pct: percent(cur.Sub(prev), prev)}
}

func customLabel(from, to *time.Time) string {
	f, t := "inicio", "fin"
	if from != nil {
		f = from.Format(time.DateOnly)
	}
	if to != nil {
		t = to.Format(time.DateOnly)
	}
	return f + ".." + t
}
