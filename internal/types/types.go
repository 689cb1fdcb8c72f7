// =============================================================================
// Fradma Dashboard - Shared Types
// =============================================================================
//
// This package contains the table types passed between readers, the
// reconciler, the reports and the persistence sink. Keeping them here avoids
// import cycles between those packages.
//
// =============================================================================

package types

import "time"

// =============================================================================
// CANONICAL FIELDS
// =============================================================================

// Field is a canonical field name. The names are the contract with report
// code and with the alias table in the configuration.
type Field string

const (
	FieldDate          Field = "fecha"
	FieldYear          Field = "anio"
	FieldMonth         Field = "mes"
	FieldInvoice       Field = "factura"
	FieldPurchaseOrder Field = "orden_compra"
	FieldCustomer      Field = "cliente"
	FieldAgent         Field = "agente"
	FieldProductLine   Field = "linea_producto"
	FieldProductCode   Field = "clave_producto"
	FieldQuantity      Field = "cantidad"
	FieldUnit          Field = "unidad"
	FieldAmount        Field = "valor_usd"
	FieldCurrency      Field = "moneda"
	FieldRate          Field = "tc"
	FieldDueDate       Field = "fecha_vencimiento"
	FieldDaysOverdue   Field = "dias_vencido"
)

// Fields lists every canonical field in resolution order.
var Fields = []Field{
	FieldDate,
	FieldYear,
	FieldMonth,
	FieldInvoice,
	FieldPurchaseOrder,
	FieldCustomer,
	FieldAgent,
	FieldProductLine,
	FieldProductCode,
	FieldQuantity,
	FieldUnit,
	FieldAmount,
	FieldCurrency,
	FieldRate,
	FieldDueDate,
	FieldDaysOverdue,
}

// =============================================================================
// RAW TABLE
// =============================================================================

// RawTable is one spreadsheet as read from disk: headers exactly as written
// (possibly duplicated, accented or padded) over rows of cell text.
type RawTable struct {
	// Headers are the original header strings in column order.
	Headers []string

	// Rows holds cell text, one slice per data row. Rows may be shorter
	// than Headers; missing cells read as empty.
	Rows [][]string

	// RowNumbers holds the 1-based source line or sheet row of each row.
	RowNumbers []int

	// RowSheets holds the sheet each row came from when several sheets were
	// concatenated. Empty for delimited text.
	RowSheets []string

	// SourceFile is the path or name the table was read from.
	SourceFile string

	// Sheet names the sheet (or sheets, joined with "+") that was read.
	Sheet string
}

// Cell returns the cell at row, col or "" when the row is short.
func (t *RawTable) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// RowNumber returns the source row number of row i, or i+2 when the reader
// did not record one (header on line 1).
func (t *RawTable) RowNumber(i int) int {
	if i < len(t.RowNumbers) {
		return t.RowNumbers[i]
	}
	return i + 2
}

// RowSheet returns the sheet row i came from.
func (t *RawTable) RowSheet(i int) string {
	if i < len(t.RowSheets) {
		return t.RowSheets[i]
	}
	return t.Sheet
}

// =============================================================================
// CANONICAL TABLE
// =============================================================================

// CanonicalRow is one reconciled sales or receivable record. Pointer fields
// are nullable: nil means the source cell was missing or unparseable.
type CanonicalRow struct {
	// SourceRow is the 1-based row number in the source sheet.
	SourceRow int

	// Sheet is the sheet the row came from.
	Sheet string

	Date          *time.Time
	Year          *int
	Month         *int
	InvoiceID     string
	PurchaseOrder string
	Customer      string
	Agent         string
	ProductLine   string
	ProductCode   string
	Quantity      *float64
	Unit          string

	// AmountUSD is nil when the amount could not be parsed. Aggregations
	// skip nil amounts instead of counting them as zero.
	AmountUSD *float64

	OriginCurrency string
	ExchangeRate   *float64
	DueDate        *time.Time
	DaysOverdue    *int

	// ContentHash is the deduplication key, see package rowkey.
	ContentHash string
}

// Table is the canonical table produced by one reconciliation.
type Table struct {
	// Source is the file the table was reconciled from.
	Source string

	// Sheet is the sheet (or sheets) that was read.
	Sheet string

	// Columns maps each resolved canonical field to the original header
	// it was read from.
	Columns map[Field]string

	// Rows preserves source order.
	Rows []CanonicalRow
}

// Has reports whether field was resolved to a source column.
func (t *Table) Has(field Field) bool {
	_, ok := t.Columns[field]
	return ok
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
