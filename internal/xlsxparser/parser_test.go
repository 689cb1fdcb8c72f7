package xlsxparser

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/alias"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/preamble"
)

// workbook builds an in-memory workbook. Sheets are created in the order
// given; the default "Sheet1" is renamed to the first name.
func workbook(t *testing.T, sheets []string, rows map[string][][]any) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range rows[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func aliasDetector() *preamble.Detector {
	table := alias.NewTable(map[string][]string{
		"fecha":     {"fecha"},
		"cliente":   {"cliente"},
		"valor_usd": {"valor_usd", "saldo"},
		"agente":    {"agente"},
	})
	return &preamble.Detector{Markers: []string{"CONTPAQ"}, Score: table.Score}
}

func TestParseNamedSheet(t *testing.T) {
	buf := workbook(t, []string{"Resumen", "X AGENTE"}, map[string][][]any{
		"Resumen":  {{"Total", 10}},
		"X AGENTE": {{"Fecha", "Agente", "Valor USD"}, {"2024-01-05", "Ana", 1200.5}, {}, {"2024-02-01", "Luis", 300}},
	})

	table, err := Parse(buf, "ventas.xlsx", Options{Sheets: []string{"x agente"}})
	require.NoError(t, err)

	assert.Equal(t, "ventas.xlsx", table.SourceFile)
	assert.Equal(t, "X AGENTE", table.Sheet)
	assert.Equal(t, []string{"Fecha", "Agente", "Valor USD"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "1200.5", table.Cell(0, 2), "numbers are read raw")
	assert.Equal(t, []int{2, 4}, table.RowNumbers)
	assert.Equal(t, "X AGENTE", table.RowSheet(1))
}

func TestParseForcedSheetMissing(t *testing.T) {
	buf := workbook(t, []string{"Hoja1"}, map[string][][]any{"Hoja1": {{"a"}}})

	_, err := Parse(buf, "x.xlsx", Options{Sheet: "Ventas"})
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestParseForcedSheetWinsOverPreferred(t *testing.T) {
	buf := workbook(t, []string{"A", "B"}, map[string][][]any{
		"A": {{"Fecha"}, {"a"}},
		"B": {{"Fecha"}, {"b"}},
	})

	table, err := Parse(buf, "x.xlsx", Options{Sheet: "B", Sheets: []string{"A"}})
	require.NoError(t, err)
	assert.Equal(t, "b", table.Cell(0, 0))
}

func TestParseSheetIndex(t *testing.T) {
	buf := workbook(t, []string{"Uno", "Dos", "Tres"}, map[string][][]any{
		"Uno":  {{"x"}, {"1"}},
		"Dos":  {{"x"}, {"2"}},
		"Tres": {{"x"}, {"3"}},
	})

	table, err := Parse(buf, "x.xlsx", Options{Sheets: []string{"Nope"}, SheetIndex: 3})
	require.NoError(t, err)
	assert.Equal(t, "Tres", table.Sheet)
	assert.Equal(t, "3", table.Cell(0, 0))
}

func TestParsePicksBestScoringSheet(t *testing.T) {
	buf := workbook(t, []string{"Portada", "Datos"}, map[string][][]any{
		"Portada": {{"Reporte anual"}, {"Empresa Demo"}},
		"Datos":   {{"Fecha", "Cliente", "Importe USD"}, {"2024-01-01", "ACME", 5}},
	})

	table, err := Parse(buf, "x.xlsx", Options{SheetIndex: 9, Detector: aliasDetector()})
	require.NoError(t, err)
	assert.Equal(t, "Datos", table.Sheet)
}

func TestParseSkipsVendorPreamble(t *testing.T) {
	buf := workbook(t, []string{"Hoja1"}, map[string][][]any{
		"Hoja1": {
			{"CONTPAQ i"},
			{"Cuentas por cobrar"},
			{},
			{"Cliente", "Saldo", "Agente"},
			{"ACME", 100, "Ana"},
		},
	})

	table, err := Parse(buf, "x.xlsx", Options{Detector: aliasDetector()})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cliente", "Saldo", "Agente"}, table.Headers)
	assert.Equal(t, []int{5}, table.RowNumbers)
}

func TestParseConcatenatesSheets(t *testing.T) {
	buf := workbook(t, []string{"CXC VIGENTES", "CXC VENCIDAS"}, map[string][][]any{
		"CXC VIGENTES": {{"Cliente", "Saldo"}, {"ACME", 100}},
		"CXC VENCIDAS": {{"Cliente", "Días vencido", "SALDO"}, {"Beta", 45, 50}, {"Gamma", 100, 25}},
	})

	table, err := Parse(buf, "cxc.xlsx", Options{Sheets: []string{"CXC VIGENTES", "CXC VENCIDAS"}})
	require.NoError(t, err)

	assert.Equal(t, "CXC VIGENTES+CXC VENCIDAS", table.Sheet)
	assert.Equal(t, []string{"Cliente", "Saldo", "Días vencido"}, table.Headers)
	require.Len(t, table.Rows, 3)

	assert.Equal(t, "ACME", table.Cell(0, 0))
	assert.Equal(t, "100", table.Cell(0, 1))
	assert.Equal(t, "", table.Cell(0, 2))

	assert.Equal(t, "Beta", table.Cell(1, 0))
	assert.Equal(t, "50", table.Cell(1, 1))
	assert.Equal(t, "45", table.Cell(1, 2))

	assert.Equal(t, []string{"CXC VIGENTES", "CXC VENCIDAS", "CXC VENCIDAS"}, table.RowSheets)
	assert.Equal(t, []int{2, 2, 3}, table.RowNumbers)
}

func TestConcatenateKeepsRepeatedHeadersApart(t *testing.T) {
	table := concatenate([]*sheetData{
		{name: "A", headers: []string{"Cliente", "Cliente"}, rows: [][]string{{"x", "y"}}, rowNumbers: []int{2}},
		{name: "B", headers: []string{"Cliente"}, rows: [][]string{{"z"}}, rowNumbers: []int{2}},
	})

	assert.Equal(t, []string{"Cliente", "Cliente"}, table.Headers)
	assert.Equal(t, "y", table.Cell(0, 1))
	assert.Equal(t, "z", table.Cell(1, 0))
}

func TestParseDatesComeBackAsSerials(t *testing.T) {
	buf := workbook(t, []string{"Hoja1"}, map[string][][]any{
		"Hoja1": {{"Fecha"}, {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}},
	})

	table, err := Parse(buf, "x.xlsx", Options{})
	require.NoError(t, err)
	assert.Equal(t, "45292", table.Cell(0, 0))
}

func TestParseEmptySheet(t *testing.T) {
	buf := workbook(t, []string{"Hoja1"}, map[string][][]any{})

	_, err := Parse(buf, "x.xlsx", Options{})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseRejectsNonWorkbook(t *testing.T) {
	_, err := Parse(strings.NewReader("not a zip"), "x.xlsx", Options{})
	assert.Error(t, err)
}

func TestSheetNames(t *testing.T) {
	buf := workbook(t, []string{"CXC VIGENTES", "Otra", "CXC VENCIDAS"}, map[string][][]any{})

	names, err := SheetNames(bytes.NewReader(buf.Bytes()), Options{Sheets: []string{"CXC VENCIDAS", "CXC VIGENTES"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"CXC VENCIDAS", "CXC VIGENTES"}, names)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ventas.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Fecha", "Importe"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"2024-01-01", 5}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := ParseFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ventas.xlsx", table.SourceFile)
	assert.Equal(t, "Sheet1", table.Sheet)
}
