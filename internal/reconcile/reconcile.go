// =============================================================================
// Fradma Dashboard - Schema Reconciler
// =============================================================================
//
// The reconciler turns one RawTable into a canonical Table.
//
// PROCESSING STEPS:
//   1. Normalize headers; on collision keep the first column (first-wins,
//      lossy but deterministic) and record an AmbiguousColumn warning
//   2. Resolve every canonical field through the alias table
//   3. Fail once for schema-level problems: no date and no year, a missing
//      profile-required field, or no amount column
//   4. Decide whether amounts need currency conversion
//   5. Build one CanonicalRow per input row, in order; bad cells become nulls
//      and are recorded as UnparseableRow issues
//   6. Derive year and month from the date, hash the row
//
// FAILURE SEMANTICS:
//   Schema-level failures return a *MissingFieldError and no table.
//   Row-level failures never abort; they are counted in the Summary.
//
// =============================================================================

package reconcile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/alias"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/currency"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/money"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/normalize"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/rowkey"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// =============================================================================
// RECONCILER
// =============================================================================

// Options configures a Reconciler.
type Options struct {
	// Aliases resolves canonical fields. Required.
	Aliases *alias.Table

	// LocalAmountAliases are amount aliases denominated in local currency.
	LocalAmountAliases []string

	// AllowMissingDate accepts tables where neither a date nor a year
	// resolves. The zero value rejects them with a MissingFieldError.
	AllowMissingDate bool

	// Required fields must resolve to a column. The amount is always required.
	Required []types.Field

	// ConvertWithoutCurrencyColumn converts local amounts even without a
	// currency column.
	ConvertWithoutCurrencyColumn bool

	// LocalCurrency labels local amounts that have no currency column.
	LocalCurrency string

	// Cleaner parses amount, quantity and rate cells. Defaults to money's
	// default sentinels.
	Cleaner *money.Cleaner

	// Converter performs USD conversion. Required.
	Converter *currency.Converter

	// Dates parses date cells. Defaults to DefaultDateLayouts.
	Dates *DateParser

	// Text applies text rules to canonical text fields. Optional.
	Text *Transformer
}

// Reconciler assembles canonical tables.
type Reconciler struct {
	opts   Options
	local  map[string]bool
	logger *slog.Logger
}

// New builds a Reconciler.
func New(opts Options, logger *slog.Logger) (*Reconciler, error) {
	if opts.Aliases == nil {
		return nil, fmt.Errorf("reconcile: alias table is required")
	}
	if opts.Converter == nil {
		return nil, fmt.Errorf("reconcile: currency converter is required")
	}
	if opts.Cleaner == nil {
		opts.Cleaner = money.NewCleaner(nil)
	}
	if opts.Dates == nil {
		opts.Dates = NewDateParser(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	local := make(map[string]bool, len(opts.LocalAmountAliases))
	for _, a := range opts.LocalAmountAliases {
		local[normalize.Header(a)] = true
	}

	return &Reconciler{opts: opts, local: local, logger: logger}, nil
}

// Aliases returns the alias table the reconciler resolves columns with.
func (r *Reconciler) Aliases() *alias.Table {
	return r.opts.Aliases
}

// Reconcile builds the canonical table for raw. The Summary is returned
// even on failure so callers can see which columns were found.
func (r *Reconciler) Reconcile(raw *types.RawTable) (*types.Table, *Summary, error) {
	summary := newSummary(raw)
	if len(raw.Headers) == 0 {
		return nil, summary, ErrEmptyTable
	}

	headers := r.dedupeHeaders(raw.Headers, summary)
	matches := r.opts.Aliases.ResolveAll(headers)
	for field, m := range matches {
		summary.Columns[field] = raw.Headers[m.Index]
		r.logger.Debug("resolved column", "field", field, "alias", m.Alias, "column", raw.Headers[m.Index])
	}

	if err := r.checkSchema(matches); err != nil {
		return nil, summary, err
	}

	plan := r.planConversion(matches, summary)

	table := &types.Table{
		Source:  raw.SourceFile,
		Sheet:   raw.Sheet,
		Columns: summary.Columns,
		Rows:    make([]types.CanonicalRow, 0, len(raw.Rows)),
	}

	for i := range raw.Rows {
		row := r.buildRow(raw, i, matches, plan, summary)
		table.Rows = append(table.Rows, row)
	}

	summary.RowsTotal = len(table.Rows)
	summary.Converted = plan.convert
	countNulls(table, matches, summary)

	r.logger.Info("reconciled table",
		"source", raw.SourceFile,
		"sheet", raw.Sheet,
		"rows", summary.RowsTotal,
		"null_amounts", summary.NullCounts[types.FieldAmount],
		"fallback_conversions", summary.FallbackCount,
		"warnings", len(summary.Warnings()),
	)

	return table, summary, nil
}

// dedupeHeaders normalizes headers and indexes them first-wins, recording
// each dropped column.
func (r *Reconciler) dedupeHeaders(rawHeaders []string, summary *Summary) alias.HeaderSet {
	normalized := normalize.Headers(rawHeaders)
	set := alias.NewHeaderSet(normalized)
	for i, name := range normalized {
		if first := set[name]; first != i {
			summary.add(Issue{
				Kind:     KindAmbiguousColumn,
				Severity: SeverityWarning,
				Field:    types.Field(name),
				Value:    rawHeaders[i],
				Message: fmt.Sprintf("column %d %q normalizes to %q like column %d %q; keeping the first",
					i+1, rawHeaders[i], name, first+1, rawHeaders[first]),
			})
		}
	}
	return set
}

// DedupeHeaders returns the normalized headers of a table with later
// duplicates removed, and the source column index of each kept header.
func DedupeHeaders(rawHeaders []string) ([]string, []int) {
	normalized := normalize.Headers(rawHeaders)
	set := alias.NewHeaderSet(normalized)
	var names []string
	var cols []int
	for i, name := range normalized {
		if set[name] == i {
			names = append(names, name)
			cols = append(cols, i)
		}
	}
	return names, cols
}

func (r *Reconciler) checkSchema(matches map[types.Field]alias.Match) error {
	_, hasDate := matches[types.FieldDate]
	_, hasYear := matches[types.FieldYear]
	if !r.opts.AllowMissingDate && !hasDate && !hasYear {
		return &MissingFieldError{Field: types.FieldDate, Tried: r.opts.Aliases.Aliases(types.FieldDate)}
	}

	for _, field := range r.opts.Required {
		if _, ok := matches[field]; !ok {
			return &MissingFieldError{Field: field, Tried: r.opts.Aliases.Aliases(field)}
		}
	}

	if _, ok := matches[types.FieldAmount]; !ok {
		return &MissingFieldError{Field: types.FieldAmount, Tried: r.opts.Aliases.Aliases(types.FieldAmount)}
	}
	return nil
}

// conversionPlan records how amounts of this table are denominated.
type conversionPlan struct {
	convert bool
	origin  string
}

func (r *Reconciler) planConversion(matches map[types.Field]alias.Match, summary *Summary) conversionPlan {
	amount := matches[types.FieldAmount]
	if !r.local[amount.Alias] {
		return conversionPlan{origin: "USD"}
	}

	if _, hasCurrency := matches[types.FieldCurrency]; hasCurrency || r.opts.ConvertWithoutCurrencyColumn {
		return conversionPlan{convert: true, origin: r.opts.LocalCurrency}
	}

	summary.add(Issue{
		Kind:     KindLocalAmountUnconverted,
		Severity: SeverityWarning,
		Field:    types.FieldAmount,
		Value:    summary.Columns[types.FieldAmount],
		Message:  "amount column is in local currency and the sheet has no currency column; amounts are not converted",
	})
	return conversionPlan{origin: r.opts.LocalCurrency}
}

// =============================================================================
// ROW ASSEMBLY
// =============================================================================

func (r *Reconciler) buildRow(raw *types.RawTable, i int, matches map[types.Field]alias.Match, plan conversionPlan, summary *Summary) types.CanonicalRow {
	rowNum := raw.RowNumber(i)
	cell := func(field types.Field) (string, bool) {
		m, ok := matches[field]
		if !ok {
			return "", false
		}
		return strings.TrimSpace(raw.Cell(i, m.Index)), true
	}
	text := func(field types.Field) string {
		v, _ := cell(field)
		return r.opts.Text.Transform(field, v)
	}
	unparseable := func(field types.Field, value, what string) {
		summary.add(Issue{
			Kind:     KindUnparseableRow,
			Severity: SeverityWarning,
			Row:      rowNum,
			Field:    field,
			Value:    value,
			Message:  what,
		})
	}
	number := func(field types.Field) *float64 {
		v, ok := cell(field)
		if !ok {
			return nil
		}
		n := r.opts.Cleaner.Clean(v)
		if n == nil && !r.opts.Cleaner.IsNull(v) {
			unparseable(field, v, "not a number")
		}
		return n
	}

	row := types.CanonicalRow{
		SourceRow:     rowNum,
		Sheet:         raw.RowSheet(i),
		InvoiceID:     text(types.FieldInvoice),
		PurchaseOrder: text(types.FieldPurchaseOrder),
		Customer:      text(types.FieldCustomer),
		Agent:         text(types.FieldAgent),
		ProductLine:   text(types.FieldProductLine),
		ProductCode:   text(types.FieldProductCode),
		Unit:          text(types.FieldUnit),
		Quantity:      number(types.FieldQuantity),
		ExchangeRate:  number(types.FieldRate),
	}

	if v, ok := cell(types.FieldDate); ok && v != "" {
		if d, ok := r.opts.Dates.Parse(v); ok {
			row.Date = &d
		} else {
			unparseable(types.FieldDate, v, "not a date")
		}
	}

	// The date wins over a year or month column so year == date.year holds.
	if row.Date != nil {
		row.Year = types.Ptr(row.Date.Year())
		row.Month = types.Ptr(int(row.Date.Month()))
	} else {
		if v, ok := cell(types.FieldYear); ok && v != "" {
			if y, ok := parseYear(v); ok {
				row.Year = &y
			} else {
				unparseable(types.FieldYear, v, "not a year")
			}
		}
		if v, ok := cell(types.FieldMonth); ok && v != "" {
			if m, ok := parseMonth(v); ok {
				row.Month = &m
			} else {
				unparseable(types.FieldMonth, v, "not a month")
			}
		}
	}

	if v, ok := cell(types.FieldDueDate); ok && v != "" {
		if d, ok := r.opts.Dates.Parse(v); ok {
			row.DueDate = &d
		} else {
			unparseable(types.FieldDueDate, v, "not a date")
		}
	}
	if v, ok := cell(types.FieldDaysOverdue); ok && v != "" {
		if n, ok := parseDays(v); ok {
			row.DaysOverdue = &n
		} else if !r.opts.Cleaner.IsNull(v) {
			unparseable(types.FieldDaysOverdue, v, "not a whole number of days")
		}
	}

	amount := number(types.FieldAmount)
	currencyCode := text(types.FieldCurrency)

	switch {
	case plan.convert:
		usd, src := r.opts.Converter.ToUSD(amount, currencyCode, row.ExchangeRate, row.Year)
		row.AmountUSD = usd
		if src == currency.SourceFallback {
			summary.FallbackCount++
			summary.add(Issue{
				Kind:     KindConversionFallbackUsed,
				Severity: SeverityInfo,
				Row:      rowNum,
				Field:    types.FieldAmount,
				Value:    fmt.Sprintf("%v", *amount),
				Message:  fmt.Sprintf("converted with fallback rate %v", r.opts.Converter.FallbackRate()),
			})
		}
		row.OriginCurrency = currencyCode
		if row.OriginCurrency == "" && src != currency.SourceIdentity {
			row.OriginCurrency = plan.origin
		}
	default:
		row.AmountUSD = amount
		row.OriginCurrency = currencyCode
		if row.OriginCurrency == "" {
			row.OriginCurrency = plan.origin
		}
	}

	row.ContentHash = rowkey.ForRow(row)
	return row
}

// countNulls fills NullCounts for every resolved field plus the derived
// year and month.
func countNulls(table *types.Table, matches map[types.Field]alias.Match, summary *Summary) {
	tracked := make(map[types.Field]bool, len(matches)+3)
	for field := range matches {
		tracked[field] = true
	}
	tracked[types.FieldYear] = true
	tracked[types.FieldMonth] = true
	tracked[types.FieldAmount] = true

	for field := range tracked {
		summary.NullCounts[field] = 0
	}

	for _, row := range table.Rows {
		for field := range tracked {
			if isNull(row, field) {
				summary.NullCounts[field]++
			}
		}
	}
}

func isNull(row types.CanonicalRow, field types.Field) bool {
	switch field {
	case types.FieldDate:
		return row.Date == nil
	case types.FieldYear:
		return row.Year == nil
	case types.FieldMonth:
		return row.Month == nil
	case types.FieldInvoice:
		return row.InvoiceID == ""
	case types.FieldPurchaseOrder:
		return row.PurchaseOrder == ""
	case types.FieldCustomer:
		return row.Customer == ""
	case types.FieldAgent:
		return row.Agent == ""
	case types.FieldProductLine:
		return row.ProductLine == ""
	case types.FieldProductCode:
		return row.ProductCode == ""
	case types.FieldQuantity:
		return row.Quantity == nil
	case types.FieldUnit:
		return row.Unit == ""
	case types.FieldAmount:
		return row.AmountUSD == nil
	case types.FieldCurrency:
		return row.OriginCurrency == ""
	case types.FieldRate:
		return row.ExchangeRate == nil
	case types.FieldDueDate:
		return row.DueDate == nil
	case types.FieldDaysOverdue:
		return row.DaysOverdue == nil
	}
	return false
}
