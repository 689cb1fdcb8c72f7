// Package preamble locates the real header row of a sheet exported by
// accounting software, which often prints a report title, company name and
// date range above the column headers.
package preamble

import (
	"strings"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
)

// Scorer rates a candidate header row; higher is more header-like. The
// alias table's Score method is the usual implementation.
type Scorer func(cells []string) int

// Detector finds the header row.
type Detector struct {
	// Markers are upper-case substrings identifying a vendor preamble,
	// e.g. "CONTPAQ".
	Markers []string

	// SkipRows is skipped outright when a marker is found. Zero means
	// "search for the header row below the marker instead".
	SkipRows int

	// ScanRows bounds the search. Defaults to 20.
	ScanRows int

	// MinScore is the score a row needs to count as a header. The first
	// row reaching it wins. Defaults to 2.
	MinScore int

	// Score rates candidate rows. Without it the first non-empty row is
	// the header unless SkipRows applies.
	Score Scorer
}

// FromConfig builds a Detector from the input settings.
func FromConfig(in config.InputConfig, score Scorer) *Detector {
	return &Detector{
		Markers:  in.PreambleMarkers,
		SkipRows: in.PreambleSkipRows,
		ScanRows: in.HeaderScanRows,
		Score:    score,
	}
}

// HeaderRow returns the 0-based index of the header row in rows.
func (d *Detector) HeaderRow(rows [][]string) int {
	first := firstNonEmpty(rows)
	if d == nil || first < 0 {
		return max(first, 0)
	}

	scan := d.ScanRows
	if scan <= 0 {
		scan = 20
	}
	limit := min(len(rows), scan)

	if d.SkipRows > 0 && d.hasMarker(rows[:limit]) && d.SkipRows < len(rows) {
		return d.SkipRows
	}

	if d.Score == nil {
		return first
	}

	minScore := d.MinScore
	if minScore <= 0 {
		minScore = 2
	}

	for i := first; i < limit; i++ {
		if d.Score(rows[i]) >= minScore {
			return i
		}
	}
	return first
}

func (d *Detector) hasMarker(rows [][]string) bool {
	for _, row := range rows {
		for _, cell := range row {
			upper := strings.ToUpper(cell)
			for _, m := range d.Markers {
				if m != "" && strings.Contains(upper, strings.ToUpper(m)) {
					return true
				}
			}
		}
	}
	return false
}

func firstNonEmpty(rows [][]string) int {
	for i, row := range rows {
		if !IsRowEmpty(row) {
			return i
		}
	}
	return -1
}

// IsRowEmpty checks if a row contains only blank cells.
func IsRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
