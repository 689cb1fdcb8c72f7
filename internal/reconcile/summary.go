package reconcile

import (
	"fmt"
	"strings"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// =============================================================================
// ROW-LEVEL ISSUES
// =============================================================================

// Kind classifies an Issue.
type Kind string

const (
	// KindUnparseableRow: a date, amount or number cell could not be parsed.
	// The field is null in the canonical row.
	KindUnparseableRow Kind = "UnparseableRow"

	// KindAmbiguousColumn: two headers normalized to the same name and the
	// later one was dropped.
	KindAmbiguousColumn Kind = "AmbiguousColumn"

	// KindConversionFallbackUsed: the amount was converted with the fallback
	// rate instead of a row or year rate.
	KindConversionFallbackUsed Kind = "ConversionFallbackUsed"

	// KindLocalAmountUnconverted: the amount column is in local currency but
	// the sheet has no currency column, so amounts passed through.
	KindLocalAmountUnconverted Kind = "LocalAmountUnconverted"
)

// Severity of an Issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one non-fatal finding. Row is zero for table-level issues.
type Issue struct {
	Kind     Kind
	Severity Severity
	Row      int
	Field    types.Field
	Value    string
	Message  string
}

// String renders the issue for logs.
func (i Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(i.Severity)), i.Kind)
	if i.Row > 0 {
		fmt.Fprintf(&b, " row %d", i.Row)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, " field '%s'", i.Field)
	}
	fmt.Fprintf(&b, ": %s", i.Message)
	if i.Value != "" {
		fmt.Fprintf(&b, " (value: '%s')", i.Value)
	}
	return b.String()
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is returned alongside the canonical table so callers can warn
// about degraded rows without blocking analysis.
type Summary struct {
	// Source and Sheet identify the input.
	Source string
	Sheet  string

	// RowsTotal is the number of canonical rows emitted.
	RowsTotal int

	// Columns maps each resolved field to the original header it came from.
	Columns map[types.Field]string

	// NullCounts counts rows whose field is null or empty, for every
	// resolved field and for the derived year and month.
	NullCounts map[types.Field]int

	// Converted is true when amounts went through currency conversion.
	Converted bool

	// FallbackCount counts conversions that used the fallback rate.
	FallbackCount int

	// Issues lists every finding in the order it was found.
	Issues []Issue
}

func newSummary(raw *types.RawTable) *Summary {
	return &Summary{
		Source:     raw.SourceFile,
		Sheet:      raw.Sheet,
		Columns:    make(map[types.Field]string),
		NullCounts: make(map[types.Field]int),
	}
}

func (s *Summary) add(issue Issue) {
	s.Issues = append(s.Issues, issue)
}

// Count returns the number of issues of kind.
func (s *Summary) Count(kind Kind) int {
	n := 0
	for _, i := range s.Issues {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// Warnings returns the issues with warning severity.
func (s *Summary) Warnings() []Issue {
	var out []Issue
	for _, i := range s.Issues {
		if i.Severity == SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}

// UsableAmounts is the number of rows with a non-null amount.
func (s *Summary) UsableAmounts() int {
	return s.RowsTotal - s.NullCounts[types.FieldAmount]
}
