package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/report"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// MonthNames are the column labels of month pivots.
var MonthNames = [12]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// NewMarker is written in growth cells of lines without sales in the
// lagged period.
const NewMarker = "NEW"

// =============================================================================
// SHEET WRITER
// =============================================================================

// sheetWriter appends rows to one sheet and keeps the first error, so a
// report can be written as a flat list of rows and checked once.
type sheetWriter struct {
	f     *excelize.File
	name  string
	row   int
	err   error
	style int
}

// workbook creates a file whose sheets are named, in order, by names.
func workbook(names ...string) (*excelize.File, []*sheetWriter, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	writers := make([]*sheetWriter, len(names))
	for i, name := range names {
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), name)
		} else {
			_, err = f.NewSheet(name)
		}
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		writers[i] = &sheetWriter{f: f, name: name, style: bold}
	}
	return f, writers, nil
}

func (w *sheetWriter) append(values ...any) {
	if w.err != nil {
		return
	}
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(w.name, cell, &values)
}

// header appends a bold row.
func (w *sheetWriter) header(values ...any) {
	w.append(values...)
	if w.err != nil || len(values) == 0 {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, w.row)
	last, _ := excelize.CoordinatesToCellName(len(values), w.row)
	w.err = w.f.SetCellStyle(w.name, first, last, w.style)
}

func (w *sheetWriter) groups(title string, groups []report.Group) {
	w.header(title, "Total USD", "Operaciones")
	for _, g := range groups {
		w.append(g.Key, number(g.Total), g.Operations)
	}
}

func finish(f *excelize.File, writers []*sheetWriter) (*excelize.File, error) {
	for _, w := range writers {
		if w.err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", w.name, w.err)
		}
	}
	return f, nil
}

// =============================================================================
// REPORT WORKBOOKS
// =============================================================================

// KPIWorkbook renders the KPI report.
func KPIWorkbook(kpi *report.KPI) (*excelize.File, error) {
	f, ws, err := workbook("Resumen", "Por agente", "Por linea", "Recientes")
	if err != nil {
		return nil, err
	}
	summary, agents, lines, recent := ws[0], ws[1], ws[2], ws[3]

	summary.header("Indicador", "Valor")
	summary.append("Total USD", number(kpi.TotalUSD))
	summary.append("Total MN", number(kpi.TotalMN))
	summary.append("Operaciones", kpi.Operations)
	summary.append("Montos nulos", kpi.NullAmounts)
	summary.append("Filas con tipo de cambio de respaldo", kpi.FallbackRows)
	if kpi.UnratedRows > 0 {
		summary.append("Filas sin tipo de cambio", kpi.UnratedRows)
	}

	agents.groups("Agente", kpi.ByAgent)
	lines.groups("Linea", kpi.ByLine)

	recent.header("Fecha", "Factura", "Cliente", "Agente", "Linea", "Importe USD")
	for _, row := range kpi.Recent {
		recent.append(formatDate(row.Date), row.InvoiceID, row.Customer, row.Agent, row.ProductLine, nullable(row.AmountUSD))
	}

	return finish(f, ws)
}

// YoYWorkbook renders the year x month pivot and, when cmp is not nil, the
// two-year comparison.
func YoYWorkbook(pivot *report.YearMonthPivot, cmp *report.Comparison) (*excelize.File, error) {
	names := []string{"Pivote"}
	if cmp != nil {
		names = append(names, "Comparativo")
	}
	f, ws, err := workbook(names...)
	if err != nil {
		return nil, err
	}

	p := ws[0]
	head := []any{"Anio"}
	for _, m := range MonthNames {
		head = append(head, m)
	}
	p.header(append(head, "Total")...)
	for _, yr := range pivot.Years {
		line := []any{yr.Year}
		for _, v := range yr.Months {
			line = append(line, number(v))
		}
		p.append(append(line, number(yr.Total))...)
	}

	if cmp != nil {
		c := ws[1]
		c.header("Mes", cmp.BaseYear, cmp.TargetYear, "Diferencia", "Variacion %")
		for _, d := range cmp.Months {
			c.append(MonthNames[d.Month-1], number(d.Base), number(d.Target), number(d.Difference), nullable(d.Variation))
		}
		t := cmp.Total
		c.append("Total", number(t.Base), number(t.Target), number(t.Difference), nullable(t.Variation))
	}

	return finish(f, ws)
}

// HeatmapWorkbook renders the heatmap. Masked cells are left blank. A
// second sheet holds growth percentages when any cell has one.
func HeatmapWorkbook(hm *report.Heatmap) (*excelize.File, error) {
	names := []string{"Heatmap"}
	withGrowth := hasGrowth(hm)
	if withGrowth {
		names = append(names, "Crecimiento")
	}
	f, ws, err := workbook(names...)
	if err != nil {
		return nil, err
	}

	head := []any{"Periodo"}
	for _, l := range hm.Lines {
		head = append(head, l)
	}

	values := ws[0]
	values.header(head...)
	for i, period := range hm.Periods {
		line := []any{period}
		for _, c := range hm.Cells[i] {
			if c.Masked {
				line = append(line, nil)
				continue
			}
			line = append(line, number(c.Value))
		}
		values.append(line...)
	}
	totals := []any{"Total"}
	for _, t := range hm.LineTotals {
		totals = append(totals, number(t))
	}
	values.append(totals...)

	if withGrowth {
		g := ws[1]
		g.header(head...)
		for i, period := range hm.Periods {
			line := []any{period}
			for _, c := range hm.Cells[i] {
				line = append(line, growthValue(c.Growth))
			}
			g.append(line...)
		}
	}

	return finish(f, ws)
}

// AgingWorkbook renders the receivables report.
func AgingWorkbook(aging *report.Aging) (*excelize.File, error) {
	f, ws, err := workbook("Resumen", "Antiguedad", "Por cliente", "Por agente", "Por linea", "Por estatus")
	if err != nil {
		return nil, err
	}
	summary, buckets := ws[0], ws[1]

	summary.header("Indicador", "Valor")
	summary.append("Fecha de corte", aging.AsOf.Format(time.DateOnly))
	summary.append("Saldo total", number(aging.TotalBalance))
	summary.append("Clientes", aging.Customers)
	summary.append("Agentes", aging.Agents)
	summary.append("Lineas", aging.Lines)
	summary.append("Saldos nulos", aging.NullBalances)

	buckets.header("Rango", "Saldo", "Documentos")
	for _, b := range aging.Buckets {
		buckets.append(string(b.Bucket), number(b.Total), b.Operations)
	}

	ws[2].groups("Cliente", aging.ByCustomer)
	ws[3].groups("Agente", aging.ByAgent)
	ws[4].groups("Linea", aging.ByLine)
	ws[5].groups("Estatus", aging.ByStatus)

	return finish(f, ws)
}

// CanonicalWorkbook writes the canonical table as a single sheet.
func CanonicalWorkbook(table *types.Table) (*excelize.File, error) {
	f, ws, err := workbook("Datos")
	if err != nil {
		return nil, err
	}
	w := ws[0]
	w.header("fila", "fecha", "factura", "cliente", "agente", "linea_producto", "importe_usd", "hash_row")
	for _, row := range table.Rows {
		w.append(row.SourceRow, formatDate(row.Date), row.InvoiceID, row.Customer, row.Agent, row.ProductLine, nullable(row.AmountUSD), row.ContentHash)
	}
	return finish(f, ws)
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes f to path, creating parent directories, and closes f.
func Save(f *excelize.File, path string) error {
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Write streams f to w and closes f.
func Write(f *excelize.File, w io.Writer) error {
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// =============================================================================
// CELL VALUES
// =============================================================================

func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// nullable returns nil for a nil pointer so the cell stays empty.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func growthValue(g *report.Growth) any {
	switch {
	case g == nil:
		return nil
	case g.New:
		return NewMarker
	case g.Pct != nil:
		return *g.Pct
	}
	return nil
}

func hasGrowth(hm *report.Heatmap) bool {
	for _, row := range hm.Cells {
		for _, c := range row {
			if c.Growth != nil {
				return true
			}
		}
	}
	return false
}
