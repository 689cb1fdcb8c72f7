package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// =============================================================================
// SCHEMA-LEVEL ERRORS
// =============================================================================
// Schema-level failures abort the whole reconciliation and are returned once.
// Row-level problems never produce an error; see Issue.

var (
	// ErrMissingRequiredField matches every MissingFieldError.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrMissingAmountColumn matches a MissingFieldError for the amount field.
	ErrMissingAmountColumn = errors.New("missing amount column")

	// ErrEmptyTable is returned when the table has no header row.
	ErrEmptyTable = errors.New("table has no columns")
)

// MissingFieldError reports a canonical field with no matching column.
type MissingFieldError struct {
	// Field is the canonical field that could not be resolved.
	Field types.Field

	// Tried lists the aliases that were looked for.
	Tried []string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	if e.Field == types.FieldAmount {
		return fmt.Sprintf("missing amount column (tried: %s)", strings.Join(e.Tried, ", "))
	}
	return fmt.Sprintf("missing required field %q (tried: %s)", string(e.Field), strings.Join(e.Tried, ", "))
}

// Is lets errors.Is match the package sentinels.
func (e *MissingFieldError) Is(target error) bool {
	switch target {
	case ErrMissingRequiredField:
		return true
	case ErrMissingAmountColumn:
		return e.Field == types.FieldAmount
	}
	return false
}
