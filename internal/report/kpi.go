package report

import (
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/currency"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// DefaultRecent is the number of most recent rows a KPI report lists.
const DefaultRecent = 50

// KPIOptions filters the KPI report. Empty filters match everything;
// matching ignores case and surrounding spaces.
type KPIOptions struct {
	Agent       string
	ProductLine string

	// Recent is the number of most recent rows to list. Zero means
	// DefaultRecent.
	Recent int
}

// KPI is the general sales summary.
type KPI struct {
	// TotalUSD sums non-null amounts.
	TotalUSD decimal.Decimal

	// TotalMN is TotalUSD recomputed in local currency with each row's
	// year rate.
	TotalMN decimal.Decimal

	// Operations counts rows in scope, null amounts included.
	Operations int

	// NullAmounts counts rows skipped by the sums.
	NullAmounts int

	// FallbackRows counts rows whose local total used the fallback rate.
	FallbackRows int

	// UnratedRows counts rows left out of TotalMN under the strict policy.
	UnratedRows int

	// Agents and ProductLines list the filter values available.
	Agents       []string
	ProductLines []string

	ByAgent []Group
	ByLine  []Group

	// Recent lists rows by date, newest first. Undated rows sort last.
	Recent []types.CanonicalRow
}

// BuildKPI computes the KPI report.
func BuildKPI(rows []types.CanonicalRow, conv *currency.Converter, opts KPIOptions) (*KPI, error) {
	if conv == nil {
		return nil, errors.New("report: KPI needs a currency converter")
	}

	kpi := &KPI{
		Agents:       values(rows, func(r types.CanonicalRow) string { return r.Agent }),
		ProductLines: values(rows, func(r types.CanonicalRow) string { return r.ProductLine }),
	}

	var scoped []types.CanonicalRow
	for _, row := range rows {
		if matches(row.Agent, opts.Agent) && matches(row.ProductLine, opts.ProductLine) {
			scoped = append(scoped, row)
		}
	}

	for _, row := range scoped {
		kpi.Operations++

		amount, ok := amountOf(row)
		if !ok {
			kpi.NullAmounts++
			continue
		}
		kpi.TotalUSD = kpi.TotalUSD.Add(amount)

		var year *int
		if y, ok := yearOf(row); ok {
			year = &y
		}
		rate, src := conv.RateFor(year)
		switch src {
		case currency.SourceNone:
			kpi.UnratedRows++
			continue
		case currency.SourceFallback:
			kpi.FallbackRows++
		}
		kpi.TotalMN = kpi.TotalMN.Add(amount.Mul(decimal.NewFromFloat(rate)))
	}

	kpi.ByAgent = groupBy(scoped, func(r types.CanonicalRow) string { return r.Agent })
	kpi.ByLine = groupBy(scoped, func(r types.CanonicalRow) string { return r.ProductLine })
	kpi.Recent = mostRecent(scoped, positiveOr(opts.Recent, DefaultRecent))

	return kpi, nil
}

func matches(value, filter string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || strings.EqualFold(strings.TrimSpace(value), filter)
}

// values lists distinct non-blank values in sorted order.
func values(rows []types.CanonicalRow, key func(types.CanonicalRow) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		v := strings.TrimSpace(key(row))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func mostRecent(rows []types.CanonicalRow, n int) []types.CanonicalRow {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b types.CanonicalRow) int {
		switch {
		case a.Date == nil && b.Date == nil:
			return 0
		case a.Date == nil:
			return 1
		case b.Date == nil:
			return -1
		}
		return b.Date.Compare(*a.Date)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
