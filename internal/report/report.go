// =============================================================================
// Fradma Dashboard - Report Renderers
// =============================================================================
//
// This package computes the dashboard reports from canonical rows:
//   - KPI       : totals, filters, agent and line ranking, recent sales
//   - YoY       : year x month pivot and a two-year comparison
//   - Heatmap   : period x product line sums with growth markers
//   - Aging     : receivables balance by agent, customer, line and age
//
// Reports are pure computations over []types.CanonicalRow. Rendering
// (tables, workbooks) happens in the export package and the CLI.
//
// NULL HANDLING:
//   Rows with a nil amount are skipped by every sum and counted separately,
//   never treated as zero.
//
// =============================================================================

package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// Unassigned labels rows whose grouping column is blank.
const Unassigned = "(sin dato)"

// Group is one bucket of a grouped sum.
type Group struct {
	Key        string
	Total      decimal.Decimal
	Operations int
}

// amountOf returns the row amount as an exact decimal.
func amountOf(row types.CanonicalRow) (decimal.Decimal, bool) {
	if row.AmountUSD == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*row.AmountUSD), true
}

// yearOf prefers the year column and falls back to the date.
func yearOf(row types.CanonicalRow) (int, bool) {
	switch {
	case row.Year != nil:
		return *row.Year, true
	case row.Date != nil:
		return row.Date.Year(), true
	}
	return 0, false
}

// monthOf prefers the month column and falls back to the date.
func monthOf(row types.CanonicalRow) (int, bool) {
	switch {
	case row.Month != nil && *row.Month >= 1 && *row.Month <= 12:
		return *row.Month, true
	case row.Date != nil:
		return int(row.Date.Month()), true
	}
	return 0, false
}

func label(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unassigned
	}
	return s
}

// groupBy sums amounts per key. Groups are ordered by total descending,
// then key.
func groupBy(rows []types.CanonicalRow, key func(types.CanonicalRow) string) []Group {
	index := make(map[string]int)
	var groups []Group

	for _, row := range rows {
		amount, ok := amountOf(row)
		if !ok {
			continue
		}
		k := label(key(row))
		i, seen := index[k]
		if !seen {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Total = groups[i].Total.Add(amount)
		groups[i].Operations++
	}

	slices.SortStableFunc(groups, func(a, b Group) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return groups
}

// distinct counts the distinct non-blank values of key.
func distinct(rows []types.CanonicalRow, key func(types.CanonicalRow) string) int {
	seen := make(map[string]bool)
	for _, row := range rows {
		if k := strings.TrimSpace(key(row)); k != "" {
			seen[k] = true
		}
	}
	return len(seen)
}

// percent returns (part / base) * 100 as a float, or nil when base is zero.
func percent(part, base decimal.Decimal) *float64 {
	if base.IsZero() {
		return nil
	}
	v := part.Div(base).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return &v
}
