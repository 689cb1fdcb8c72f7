package report

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/currency"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func sale(date *time.Time, agent, line string, amount *float64) types.CanonicalRow {
	return types.CanonicalRow{Date: date, Agent: agent, ProductLine: line, AmountUSD: amount}
}

func usd(v float64) *float64 { return &v }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !decimal.RequireFromString(want).Equal(got) {
		assert.Fail(t, fmt.Sprintf("want %s, got %s", want, got), msgAndArgs...)
	}
}

func testConverter(t *testing.T, policy currency.Policy) *currency.Converter {
	t.Helper()
	conv, err := currency.NewConverter(currency.Options{
		RateTable:    map[int]float64{2023: 17.81, 2024: 18.325},
		FallbackRate: 17.0,
		Policy:       policy,
	})
	require.NoError(t, err)
	return conv
}

func TestGroupByOrdersByTotal(t *testing.T) {
	rows := []types.CanonicalRow{
		sale(nil, "Ana", "", usd(10)),
		sale(nil, "Luis", "", usd(30)),
		sale(nil, "Ana", "", usd(5)),
		sale(nil, "", "", usd(1)),
		sale(nil, "Zoe", "", nil),
		sale(nil, "Bea", "", usd(15)),
	}

	groups := groupBy(rows, func(r types.CanonicalRow) string { return r.Agent })
	require.Len(t, groups, 4)
	assert.Equal(t, "Luis", groups[0].Key)
	assert.Equal(t, "Ana", groups[1].Key, "ties break by name")
	assert.Equal(t, "Bea", groups[2].Key)
	assert.Equal(t, Unassigned, groups[3].Key)
	assert.Equal(t, 2, groups[1].Operations)
	assertDecimal(t, "15", groups[1].Total)
}

func TestSumsAreExact(t *testing.T) {
	rows := []types.CanonicalRow{sale(nil, "a", "", usd(0.1)), sale(nil, "a", "", usd(0.2))}
	groups := groupBy(rows, func(r types.CanonicalRow) string { return r.Agent })
	assertDecimal(t, "0.3", groups[0].Total)
}

// =============================================================================
// KPI
// =============================================================================

func TestBuildKPI(t *testing.T) {
	rows := []types.CanonicalRow{
		sale(day(2024, 1, 10), "Ana", "Tintas", usd(100)),
		sale(day(2023, 6, 1), "Luis", "Papel", usd(50)),
		sale(day(2019, 2, 1), "Ana", "Papel", usd(10)),
		sale(day(2024, 3, 1), "Ana", "Tintas", nil),
		sale(nil, "Luis", "Tintas", usd(1)),
	}

	kpi, err := BuildKPI(rows, testConverter(t, currency.PolicyFallback), KPIOptions{})
	require.NoError(t, err)

	assertDecimal(t, "161", kpi.TotalUSD)
	// 100*18.325 + 50*17.81 + 10*17 (2019 not in table) + 1*17 (undated)
	assertDecimal(t, "2910", kpi.TotalMN)
	assert.Equal(t, 5, kpi.Operations)
	assert.Equal(t, 1, kpi.NullAmounts)
	assert.Equal(t, 2, kpi.FallbackRows)
	assert.Equal(t, []string{"Ana", "Luis"}, kpi.Agents)
	assert.Equal(t, []string{"Papel", "Tintas"}, kpi.ProductLines)

	require.Len(t, kpi.ByAgent, 2)
	assert.Equal(t, "Ana", kpi.ByAgent[0].Key)
	assertDecimal(t, "110", kpi.ByAgent[0].Total)

	require.Len(t, kpi.Recent, 5)
	assert.Equal(t, day(2024, 3, 1), kpi.Recent[0].Date)
	assert.Nil(t, kpi.Recent[4].Date, "undated rows sort last")
}

func TestBuildKPIFilters(t *testing.T) {
	rows := []types.CanonicalRow{
		sale(day(2024, 1, 10), "Ana", "Tintas", usd(100)),
		sale(day(2024, 1, 11), "Ana", "Papel", usd(40)),
		sale(day(2024, 1, 12), "Luis", "Tintas", usd(7)),
	}

	kpi, err := BuildKPI(rows, testConverter(t, currency.PolicyFallback), KPIOptions{Agent: " ana ", ProductLine: "tintas"})
	require.NoError(t, err)
	assert.Equal(t, 1, kpi.Operations)
	assertDecimal(t, "100", kpi.TotalUSD)
	assert.Equal(t, []string{"Ana", "Luis"}, kpi.Agents, "filter values come from the unfiltered rows")
}

func TestBuildKPIRecentLimit(t *testing.T) {
	var rows []types.CanonicalRow
	for i := 1; i <= 60; i++ {
		rows = append(rows, sale(day(2024, 1, 1+i%28), "Ana", "", usd(1)))
	}

	kpi, err := BuildKPI(rows, testConverter(t, currency.PolicyFallback), KPIOptions{})
	require.NoError(t, err)
	assert.Len(t, kpi.Recent, DefaultRecent)

	kpi, err = BuildKPI(rows, testConverter(t, currency.PolicyFallback), KPIOptions{Recent: 3})
	require.NoError(t, err)
	assert.Len(t, kpi.Recent, 3)
}

func TestBuildKPIStrictPolicy(t *testing.T) {
	rows := []types.CanonicalRow{
		sale(day(2024, 1, 10), "Ana", "", usd(100)),
		sale(day(2010, 1, 10), "Ana", "", usd(100)),
	}

	kpi, err := BuildKPI(rows, testConverter(t, currency.PolicyStrict), KPIOptions{})
	require.NoError(t, err)
	assertDecimal(t, "200", kpi.TotalUSD)
	assertDecimal(t, "1832.5", kpi.TotalMN)
	assert.Equal(t, 1, kpi.UnratedRows)
}

func TestBuildKPIRequiresConverter(t *testing.T) {
	_, err := BuildKPI(nil, nil, KPIOptions{})
	assert.Error(t, err)
}

// =============================================================================
// YOY
// =============================================================================

func TestPivotYearMonth(t *testing.T) {
	yearOnly := types.CanonicalRow{Year: types.Ptr(2023), Month: types.Ptr(2), AmountUSD: usd(7)}
	rows := []types.CanonicalRow{
		sale(day(2024, 1, 10), "", "", usd(100)),
		sale(day(2024, 1, 20), "", "", usd(50)),
		sale(day(2024, 12, 1), "", "", usd(5)),
		sale(day(2023, 2, 1), "", "", usd(3)),
		yearOnly,
		{Year: types.Ptr(2023), AmountUSD: usd(1)},
		sale(day(2024, 5, 1), "", "", nil),
	}

	pivot := PivotYearMonth(rows)
	require.Len(t, pivot.Years, 2)
	assert.Equal(t, 2023, pivot.Years[0].Year)
	assert.Equal(t, 1, pivot.Undated, "a year without a month cannot be placed")
	assert.Equal(t, 1, pivot.NullAmounts)

	y2024, ok := pivot.Year(2024)
	require.True(t, ok)
	assertDecimal(t, "150", y2024.Months[0])
	assertDecimal(t, "0", y2024.Months[5], "months without sales are zero")
	assertDecimal(t, "5", y2024.Months[11])
	assertDecimal(t, "155", y2024.Total)

	y2023, _ := pivot.Year(2023)
	assertDecimal(t, "10", y2023.Months[1])

	_, ok = pivot.Year(2022)
	assert.False(t, ok)
}

func TestCompareYears(t *testing.T) {
	rows := []types.CanonicalRow{
		sale(day(2023, 1, 1), "", "", usd(100)),
		sale(day(2024, 1, 1), "", "", usd(150)),
		sale(day(2024, 2, 1), "", "", usd(40)),
		sale(day(2023, 3, 1), "", "", usd(30)),
	}

	cmp, err := CompareYears(PivotYearMonth(rows), 2023, 2024)
	require.NoError(t, err)

	jan := cmp.Months[0]
	assert.Equal(t, 1, jan.Month)
	assertDecimal(t, "50", jan.Difference)
	require.NotNil(t, jan.Variation)
	assert.InDelta(t, 50.0, *jan.Variation, 1e-9)

	feb := cmp.Months[1]
	assertDecimal(t, "40", feb.Difference)
	assert.Nil(t, feb.Variation, "no variation against a zero base")

	mar := cmp.Months[2]
	require.NotNil(t, mar.Variation)
	assert.InDelta(t, -100.0, *mar.Variation, 1e-9)

	assertDecimal(t, "60", cmp.Total.Difference)
	assert.InDelta(t, 46.15, *cmp.Total.Variation, 1e-9, "rounded to two places")

	_, err = CompareYears(PivotYearMonth(rows), 2023, 2030)
	assert.ErrorIs(t, err, ErrYearNotFound)
}

// =============================================================================
// HEATMAP
// =============================================================================

func heatmapRows() []types.CanonicalRow {
	return []types.CanonicalRow{
		sale(day(2023, 1, 5), "", "Tintas", usd(100)),
		sale(day(2024, 1, 5), "", "Tintas", usd(150)),
		sale(day(2024, 1, 9), "", "Papel", usd(80)),
		sale(day(2023, 2, 5), "", "Papel", usd(20)),
		sale(day(2024, 2, 5), "", "Papel", usd(10)),
		sale(day(2024, 2, 7), "", "", usd(1)),
		sale(nil, "", "Tintas", usd(999)),
		sale(day(2024, 3, 1), "", "Tintas", nil),
	}
}

func TestBuildHeatmapMonthly(t *testing.T) {
	hm, err := BuildHeatmap(heatmapRows(), HeatmapOptions{Period: PeriodMonthly, Growth: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"Jan-2023", "Feb-2023", "Jan-2024", "Feb-2024"}, hm.Periods)
	assert.Equal(t, []string{"Tintas", "Papel", Unassigned}, hm.Lines)
	assert.Equal(t, 1, hm.Undated)
	assert.Equal(t, 1, hm.NullAmounts)

	// Jan-2024 vs Jan-2023
	tintas := hm.Cells[2][0]
	assertDecimal(t, "150", tintas.Value)
	require.NotNil(t, tintas.Growth)
	require.NotNil(t, tintas.Growth.Pct)
	assert.InDelta(t, 50.0, *tintas.Growth.Pct, 1e-9)

	papelJan := hm.Cells[2][1]
	require.NotNil(t, papelJan.Growth)
	assert.True(t, papelJan.Growth.New, "no Papel sales in Jan-2023")

	papelFeb := hm.Cells[3][1]
	assert.InDelta(t, -50.0, *papelFeb.Growth.Pct, 1e-9)

	assert.Nil(t, hm.Cells[0][0].Growth, "nothing twelve months earlier")
	assert.Equal(t, []string{"Papel", Unassigned}, hm.NewLines)
	assertDecimal(t, "250", hm.LineTotals[0])
}

func TestBuildHeatmapQuarterlyAndYearly(t *testing.T) {
	hm, err := BuildHeatmap(heatmapRows(), HeatmapOptions{Period: PeriodQuarterly, Growth: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"2023Q1", "2024Q1"}, hm.Periods)
	assert.InDelta(t, 50.0, *hm.Cells[1][0].Growth.Pct, 1e-9)

	hm, err = BuildHeatmap(heatmapRows(), HeatmapOptions{Period: PeriodYearly, Growth: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"2023", "2024"}, hm.Periods)
	// Papel: 20 -> 90
	assert.InDelta(t, 350.0, *hm.Cells[1][1].Growth.Pct, 1e-9)
}

func TestBuildHeatmapCustomRange(t *testing.T) {
	hm, err := BuildHeatmap(heatmapRows(), HeatmapOptions{
		Period: PeriodCustom, From: day(2024, 1, 1), To: day(2024, 1, 31), Growth: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-01..2024-01-31"}, hm.Periods)
	assert.Equal(t, []string{"Tintas", "Papel"}, hm.Lines)
	assert.Nil(t, hm.Cells[0][0].Growth, "custom ranges have no growth")
}

func TestBuildHeatmapTopNAndMask(t *testing.T) {
	hm, err := BuildHeatmap(heatmapRows(), HeatmapOptions{Period: PeriodYearly, TopN: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tintas"}, hm.Lines)

	hm, err = BuildHeatmap(heatmapRows(), HeatmapOptions{Period: PeriodYearly, Min: usd(50), Max: usd(120)})
	require.NoError(t, err)
	// 2023: Tintas 100, Papel 20 (masked); 2024: Tintas 150 (masked), Papel 90
	assert.False(t, hm.Cells[0][hm.lineIndex("Tintas")].Masked)
	assert.True(t, hm.Cells[0][hm.lineIndex("Papel")].Masked)
	assert.True(t, hm.Cells[1][hm.lineIndex("Tintas")].Masked)
	assertDecimal(t, "100", hm.LineTotals[hm.lineIndex("Tintas")], "masked cells leave the totals")
}

func TestBuildHeatmapLineFilter(t *testing.T) {
	hm, err := BuildHeatmap(heatmapRows(), HeatmapOptions{Period: PeriodYearly, Lines: []string{"Papel"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Papel"}, hm.Lines)
}

func TestGrowthZeroBase(t *testing.T) {
	assert.True(t, growth(decimal.Zero, decimal.NewFromInt(5)).New)
	assert.Nil(t, growth(decimal.Zero, decimal.Zero))
	assert.Nil(t, growth(decimal.Zero, decimal.NewFromInt(-5)))
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{
		"mensual": PeriodMonthly, "Trimestral": PeriodQuarterly, "anual": PeriodYearly,
		"custom": PeriodCustom, "": PeriodMonthly,
	} {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePeriod("weekly")
	assert.Error(t, err)

	_, err = BuildHeatmap(nil, HeatmapOptions{Period: "weekly"})
	assert.Error(t, err)
}

func (h *Heatmap) lineIndex(line string) int {
	for i, l := range h.Lines {
		if l == line {
			return i
		}
	}
	return -1
}

// =============================================================================
// AGING
// =============================================================================

func TestBucketFor(t *testing.T) {
	tests := map[int]Bucket{
		-5: BucketCurrent, 0: BucketCurrent, 1: Bucket1To30, 30: Bucket1To30,
		31: Bucket31To60, 60: Bucket31To60, 61: Bucket61To90, 90: Bucket61To90, 91: BucketOver90,
	}
	for days, want := range tests {
		assert.Equal(t, want, BucketFor(days), "days %d", days)
	}
}

func TestBuildAging(t *testing.T) {
	rows := []types.CanonicalRow{
		{Sheet: "CXC VIGENTES", Customer: "ACME", Agent: "Ana", ProductLine: "Tintas", AmountUSD: usd(100)},
		{Sheet: "CXC VENCIDAS", Customer: "Beta", Agent: "Luis", ProductLine: "Papel", AmountUSD: usd(50), DaysOverdue: types.Ptr(45)},
		{Sheet: "CXC VENCIDAS", Customer: "ACME", Agent: "Ana", ProductLine: "Tintas", AmountUSD: usd(25), DueDate: day(2024, 1, 1)},
		{Sheet: "CXC VENCIDAS", Customer: "Gamma", AmountUSD: usd(5)},
		{Sheet: "CXC VENCIDAS", Customer: "Delta", AmountUSD: nil},
	}

	aging := BuildAging(rows, AgingOptions{AsOf: time.Date(2024, 4, 15, 13, 0, 0, 0, time.UTC)})

	assertDecimal(t, "180", aging.TotalBalance)
	assert.Equal(t, 4, aging.Customers)
	assert.Equal(t, 2, aging.Agents)
	assert.Equal(t, 2, aging.Lines)
	assert.Equal(t, 1, aging.NullBalances)

	require.Len(t, aging.ByCustomer, 3, "null balances are not grouped")
	assert.Equal(t, "ACME", aging.ByCustomer[0].Key)
	assertDecimal(t, "125", aging.ByCustomer[0].Total)

	require.Len(t, aging.ByStatus, 2)
	assert.Equal(t, StatusCurrent, aging.ByStatus[0].Key)

	byBucket := make(map[Bucket]BucketTotal)
	for _, b := range aging.Buckets {
		byBucket[b.Bucket] = b
	}
	assert.Len(t, aging.Buckets, len(Buckets))
	assertDecimal(t, "100", byBucket[BucketCurrent].Total, "vigentes sheet without dates")
	assertDecimal(t, "50", byBucket[Bucket31To60].Total)
	assertDecimal(t, "25", byBucket[BucketOver90].Total, "105 days past the due date")
	assertDecimal(t, "5", byBucket[BucketUnknown].Total)
	assertDecimal(t, "0", byBucket[Bucket1To30].Total)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusOverdue, Status(types.CanonicalRow{Sheet: "CXC VENCIDAS"}))
	assert.Equal(t, StatusCurrent, Status(types.CanonicalRow{Sheet: "cxc vigentes"}))
	assert.Equal(t, "", Status(types.CanonicalRow{Sheet: "Hoja1"}))
}
