// =============================================================================
// Fradma Dashboard - Export Module
// =============================================================================
//
// This package writes the dashboard outputs to files:
//   - The canonical table as CSV (one column per canonical field)
//   - Each report as an .xlsx workbook
//
// CSV LAYOUT:
//   Columns use the same names as the ventas_items table so an export can be
//   loaded into the store again or read back by ReadCSV. Null values are
//   written as empty cells, dates as YYYY-MM-DD.
//
// =============================================================================

package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// =============================================================================
// CANONICAL CSV
// =============================================================================

// Record is one canonical row as written to CSV.
type Record struct {
	Hash           string `csv:"hash_row"`
	Sheet          string `csv:"hoja"`
	SourceRow      string `csv:"fila"`
	Date           string `csv:"fecha"`
	Year           string `csv:"anio"`
	Month          string `csv:"mes"`
	InvoiceID      string `csv:"factura"`
	PurchaseOrder  string `csv:"orden_compra"`
	Customer       string `csv:"cliente"`
	Agent          string `csv:"agente"`
	ProductLine    string `csv:"linea_producto"`
	ProductCode    string `csv:"clave_producto"`
	Quantity       string `csv:"cantidad"`
	Unit           string `csv:"unidad"`
	AmountUSD      string `csv:"importe_usd"`
	OriginCurrency string `csv:"moneda_origen"`
	ExchangeRate   string `csv:"tipo_cambio"`
	DueDate        string `csv:"fecha_vencimiento"`
	DaysOverdue    string `csv:"dias_vencido"`
}

// RecordFor formats row for CSV.
func RecordFor(row types.CanonicalRow) Record {
	return Record{
		Hash:           row.ContentHash,
		Sheet:          row.Sheet,
		SourceRow:      formatInt(&row.SourceRow),
		Date:           formatDate(row.Date),
		Year:           formatInt(row.Year),
		Month:          formatInt(row.Month),
		InvoiceID:      row.InvoiceID,
		PurchaseOrder:  row.PurchaseOrder,
		Customer:       row.Customer,
		Agent:          row.Agent,
		ProductLine:    row.ProductLine,
		ProductCode:    row.ProductCode,
		Quantity:       formatFloat(row.Quantity),
		Unit:           row.Unit,
		AmountUSD:      formatFloat(row.AmountUSD),
		OriginCurrency: row.OriginCurrency,
		ExchangeRate:   formatFloat(row.ExchangeRate),
		DueDate:        formatDate(row.DueDate),
		DaysOverdue:    formatInt(row.DaysOverdue),
	}
}

// Row parses a CSV record back into a canonical row.
func (r Record) Row() (types.CanonicalRow, error) {
	var (
		row = types.CanonicalRow{
			ContentHash:    r.Hash,
			Sheet:          r.Sheet,
			InvoiceID:      r.InvoiceID,
			PurchaseOrder:  r.PurchaseOrder,
			Customer:       r.Customer,
			Agent:          r.Agent,
			ProductLine:    r.ProductLine,
			ProductCode:    r.ProductCode,
			Unit:           r.Unit,
			OriginCurrency: r.OriginCurrency,
		}
		sourceRow *int
		err       error
	)

	fields := []struct {
		name string
		fn   func() error
	}{
		{"fila", func() (e error) { sourceRow, e = parseInt(r.SourceRow); return }},
		{"fecha", func() (e error) { row.Date, e = parseDate(r.Date); return }},
		{"anio", func() (e error) { row.Year, e = parseInt(r.Year); return }},
		{"mes", func() (e error) { row.Month, e = parseInt(r.Month); return }},
		{"cantidad", func() (e error) { row.Quantity, e = parseFloat(r.Quantity); return }},
		{"importe_usd", func() (e error) { row.AmountUSD, e = parseFloat(r.AmountUSD); return }},
		{"tipo_cambio", func() (e error) { row.ExchangeRate, e = parseFloat(r.ExchangeRate); return }},
		{"fecha_vencimiento", func() (e error) { row.DueDate, e = parseDate(r.DueDate); return }},
		{"dias_vencido", func() (e error) { row.DaysOverdue, e = parseInt(r.DaysOverdue); return }},
	}
	for _, f := range fields {
		if err = f.fn(); err != nil {
			return types.CanonicalRow{}, fmt.Errorf("column %s: %w", f.name, err)
		}
	}
	if sourceRow != nil {
		row.SourceRow = *sourceRow
	}
	return row, nil
}

// WriteCSV writes rows as canonical CSV with a header line.
func WriteCSV(w io.Writer, rows []types.CanonicalRow) error {
	records := make([]*Record, len(rows))
	for i, row := range rows {
		rec := RecordFor(row)
		records[i] = &rec
	}
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// WriteCSVFile writes rows to path, creating parent directories.
func WriteCSVFile(path string, rows []types.CanonicalRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV reads a canonical CSV written by WriteCSV.
func ReadCSV(r io.Reader) ([]types.CanonicalRow, error) {
	var records []*Record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	rows := make([]types.CanonicalRow, 0, len(records))
	for i, rec := range records {
		row, err := rec.Row()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadCSVFile reads a canonical CSV file.
func ReadCSVFile(path string) ([]types.CanonicalRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// =============================================================================
// FORMATTING
// =============================================================================

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

func parseFloat(s string) (*float64, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseInt(s string) (*int, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseDate(s string) (*time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
