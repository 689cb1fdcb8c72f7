// =============================================================================
// Fradma Dashboard - Workbook Reader
// =============================================================================
//
// This module reads XLSX workbooks into a RawTable. A workbook usually holds
// several sheets and only some of them are data, so the reader first decides
// which sheet(s) to read.
//
// SHEET SELECTION (first rule that applies):
//   1. Options.Sheet, when set, must exist.
//   2. Options.Sheets: every listed sheet present in the workbook is read.
//      Several matches are concatenated (receivables: vigentes + vencidas).
//   3. Options.SheetIndex: the 1-based sheet position, when in range.
//   4. The sheet whose header row scores best against the alias table.
//
// Within each sheet the header row is located by a preamble.Detector, so
// vendor report titles above the headers are skipped.
//
// Cells are read raw: numbers come back unformatted and dates as Excel
// serials, both of which the reconciler understands.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/normalize"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/preamble"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

var (
	// ErrSheetNotFound is returned when a forced sheet name is absent.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrEmptyFile is returned when the selected sheets hold no rows.
	ErrEmptyFile = errors.New("workbook is empty")
)

// Options controls sheet selection.
type Options struct {
	// Sheet forces a single sheet by name.
	Sheet string

	// Sheets are preferred sheet names, matched accent- and case-insensitively.
	Sheets []string

	// SheetIndex is a 1-based fallback position. Zero disables it.
	SheetIndex int

	// Detector locates the header row in each sheet and scores candidate
	// sheets. May be nil.
	Detector *preamble.Detector
}

// sheetData is one sheet after header detection.
type sheetData struct {
	name       string
	headers    []string
	rows       [][]string
	rowNumbers []int
	score      int
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile reads the workbook at path.
func ParseFile(path string, opts Options) (*types.RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	table, err := parseWorkbook(f, filepath.Base(path), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Parse reads a workbook from r. source is recorded as the table's source file.
func Parse(r io.Reader, source string, opts Options) (*types.RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return parseWorkbook(f, source, opts)
}

func parseWorkbook(f *excelize.File, source string, opts Options) (*types.RawTable, error) {
	sheets, err := selectSheets(f, opts)
	if err != nil {
		return nil, err
	}

	var parts []*sheetData
	for _, name := range sheets {
		data, err := readSheet(f, name, opts.Detector)
		if err != nil {
			return nil, err
		}
		if len(data.headers) == 0 {
			continue
		}
		parts = append(parts, data)
	}
	if len(parts) == 0 {
		return nil, ErrEmptyFile
	}

	table := concatenate(parts)
	table.SourceFile = source
	return table, nil
}

// SheetNames returns the sheets Parse would read, in order.
func SheetNames(r io.Reader, opts Options) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return selectSheets(f, opts)
}

func selectSheets(f *excelize.File, opts Options) ([]string, error) {
	available := f.GetSheetList()
	if len(available) == 0 {
		return nil, ErrEmptyFile
	}

	if opts.Sheet != "" {
		if name, ok := findSheet(available, opts.Sheet); ok {
			return []string{name}, nil
		}
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrSheetNotFound, opts.Sheet, strings.Join(available, ", "))
	}

	var named []string
	for _, want := range opts.Sheets {
		if name, ok := findSheet(available, want); ok {
			named = append(named, name)
		}
	}
	if len(named) > 0 {
		return named, nil
	}

	if opts.SheetIndex > 0 && opts.SheetIndex <= len(available) {
		return []string{available[opts.SheetIndex-1]}, nil
	}

	if len(available) == 1 || opts.Detector == nil || opts.Detector.Score == nil {
		return available[:1], nil
	}

	best, bestScore := available[0], -1
	for _, name := range available {
		data, err := readSheet(f, name, opts.Detector)
		if err != nil {
			return nil, err
		}
		if data.score > bestScore {
			best, bestScore = name, data.score
		}
	}
	return []string{best}, nil
}

func findSheet(available []string, want string) (string, bool) {
	for _, name := range available {
		if name == want {
			return name, true
		}
	}
	for _, name := range available {
		if normalize.Equal(name, want) {
			return name, true
		}
	}
	return "", false
}

// readSheet reads one sheet and splits it at the detected header row.
func readSheet(f *excelize.File, name string, det *preamble.Detector) (*sheetData, error) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
	}

	data := &sheetData{name: name}
	if len(rows) == 0 {
		return data, nil
	}

	headerIndex := det.HeaderRow(rows)
	if preamble.IsRowEmpty(rows[headerIndex]) {
		return data, nil
	}

	data.headers = cleanHeaders(rows[headerIndex])
	if det != nil && det.Score != nil {
		data.score = det.Score(rows[headerIndex])
	}

	for i := headerIndex + 1; i < len(rows); i++ {
		row := rows[i]
		if preamble.IsRowEmpty(row) {
			continue
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = strings.TrimSpace(cell)
		}
		data.rows = append(data.rows, cells)
		// Sheet rows are 1-based.
		data.rowNumbers = append(data.rowNumbers, i+1)
	}

	return data, nil
}

// concatenate joins sheets into one table. Columns are matched by
// normalized header; a header repeated within a sheet stays a separate
// column. Columns only some sheets have read as empty elsewhere.
func concatenate(parts []*sheetData) *types.RawTable {
	if len(parts) == 1 {
		p := parts[0]
		return &types.RawTable{
			Headers:    p.headers,
			Rows:       p.rows,
			RowNumbers: p.rowNumbers,
			RowSheets:  repeat(p.name, len(p.rows)),
			Sheet:      p.name,
		}
	}

	table := &types.RawTable{}
	position := make(map[string]int)
	names := make([]string, 0, len(parts))

	for _, p := range parts {
		names = append(names, p.name)

		seen := make(map[string]int)
		index := make([]int, len(p.headers))
		for j, header := range p.headers {
			key := normalize.Header(header)
			seen[key]++
			if seen[key] > 1 {
				key += "#" + strconv.Itoa(seen[key])
			}
			pos, ok := position[key]
			if !ok {
				pos = len(table.Headers)
				position[key] = pos
				table.Headers = append(table.Headers, header)
			}
			index[j] = pos
		}

		for i, row := range p.rows {
			out := make([]string, len(table.Headers))
			for j, cell := range row {
				if j < len(index) {
					out[index[j]] = cell
				}
			}
			table.Rows = append(table.Rows, out)
			table.RowNumbers = append(table.RowNumbers, p.rowNumbers[i])
			table.RowSheets = append(table.RowSheets, p.name)
		}
	}

	table.Sheet = strings.Join(names, "+")
	return table
}

// cleanHeaders trims headers and names blank ones by position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}
	return cleaned
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
