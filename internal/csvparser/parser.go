// =============================================================================
// Fradma Dashboard - Delimited Text Reader
// =============================================================================
//
// This module reads CSV exports into a RawTable. Exports come from several
// accounting packages and spreadsheet "Save As" dialogs, so the reader copes
// with:
//   - UTF-8 (with or without BOM), ISO-8859-1 and Windows-1252 bytes
//   - Comma, semicolon, tab or pipe delimiters (sniffed when "auto")
//   - Report preambles above the header row
//   - Multi-row headers
//   - Ragged rows and stray quotes
//
// Headers are returned exactly as written (apart from trimming). Matching
// them to canonical fields is the reconciler's job.
//
// =============================================================================

package csvparser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/preamble"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// ErrEmptyFile is returned when the input holds no non-blank rows.
var ErrEmptyFile = errors.New("file is empty")

// delimiterCandidates are tried by the sniffer in order of preference.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ParseFile reads the CSV file at filePath.
func ParseFile(filePath string, settings config.CSVSettings, det *preamble.Detector) (*types.RawTable, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	table, err := Parse(file, settings, filepath.Base(filePath), det)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return table, nil
}

// Parse reads delimited text from r.
//
// PARAMETERS:
//   - r: The raw bytes of the export.
//   - settings: Delimiter, encoding and header-row settings.
//   - source: The name recorded as the table's source file.
//   - det: Locates the header row. May be nil (first non-blank row).
//
// RETURNS:
//   - The raw table, with 1-based source line numbers per row.
//   - ErrEmptyFile if there is nothing to read.
//
// PARSING PROCESS:
//   1. Decode the bytes to UTF-8
//   2. Sniff or apply the delimiter
//   3. Locate the header row below any preamble
//   4. Merge multi-row headers
//   5. Collect non-blank data rows with their line numbers
func Parse(r io.Reader, settings config.CSVSettings, source string, det *preamble.Detector) (*types.RawTable, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	text, err := decode(raw, settings.Encoding)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(bytes.NewReader(text))
	configureReader(csvReader, settings, text)

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := csvReader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}

	headerIndex := det.HeaderRow(records)
	if len(records) == 0 || preamble.IsRowEmpty(records[headerIndex]) {
		return nil, ErrEmptyFile
	}

	headerRows := max(settings.HeaderRows, 1)
	end := min(headerIndex+headerRows, len(records))
	headers := mergeHeaders(records[headerIndex:end])

	table := &types.RawTable{
		Headers:    headers,
		SourceFile: source,
	}

	for i := end; i < len(records); i++ {
		row := records[i]
		if preamble.IsRowEmpty(row) {
			continue
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = strings.TrimSpace(cell)
		}
		table.Rows = append(table.Rows, cells)
		table.RowNumbers = append(table.RowNumbers, lines[i])
	}

	return table, nil
}

// decode converts raw bytes to UTF-8 according to the configured encoding.
func decode(raw []byte, name string) ([]byte, error) {
	var enc encoding.Encoding

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		if utf8.Valid(raw) {
			enc = unicode.UTF8BOM
		} else {
			enc = charmap.Windows1252
		}
	case "utf-8", "utf8":
		enc = unicode.UTF8BOM
	case "iso-8859-1", "latin1", "latin-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s input: %w", name, err)
	}
	return out, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings, text []byte) {
	switch settings.Delimiter {
	case "", "auto":
		reader.Comma = SniffDelimiter(text)
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		r, _ := utf8.DecodeRuneInString(settings.Delimiter)
		reader.Comma = r
	}

	// Exports are frequently ragged and hand-edited.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// SniffDelimiter picks the candidate delimiter that splits the first few
// non-blank lines most consistently. Quoted sections are ignored. Returns
// ',' when nothing better is found.
func SniffDelimiter(text []byte) rune {
	var lines []string
	for _, line := range strings.Split(string(text), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 5 {
			break
		}
	}

	best, bestScore := ',', 0
	for _, cand := range delimiterCandidates {
		score := 0
		for _, line := range lines {
			score += countOutsideQuotes(line, cand)
		}
		if score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best
}

func countOutsideQuotes(line string, delim rune) int {
	n, quoted := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			n++
		}
	}
	return n
}

// mergeHeaders merges header rows into one.
//
// MULTI-LINE HEADER HANDLING:
//   Non-empty values of each column are joined with a space.
//
//   Row 1: "Importe", "",    "Fecha"
//   Row 2: "USD",     "TC",  ""
//   Result: "Importe USD", "TC", "Fecha"
func mergeHeaders(rows [][]string) []string {
	if len(rows) == 1 {
		return cleanHeaders(rows[0])
	}

	maxCols := 0
	for _, row := range rows {
		maxCols = max(maxCols, len(row))
	}

	headers := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for _, row := range rows {
			if col < len(row) {
				if value := strings.TrimSpace(row[col]); value != "" {
					parts = append(parts, value)
				}
			}
		}
		headers[col] = strings.Join(parts, " ")
	}

	return cleanHeaders(headers)
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
