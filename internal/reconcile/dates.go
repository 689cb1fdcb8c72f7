package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/normalize"
)

// =============================================================================
// DATE AND PERIOD PARSING
// =============================================================================

// DefaultDateLayouts are tried in order when no layouts are configured.
// Day-first layouts come before month-first ones.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	"02/01/06",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// Excel serials outside this range are not treated as dates: below it a
// cell is more likely a count, above it lies year 2200.
const (
	minExcelSerial = 367
	maxExcelSerial = 109575
)

// DateParser parses date cells written as text or as Excel serial numbers.
type DateParser struct {
	layouts []string
}

// NewDateParser builds a parser. A nil list selects DefaultDateLayouts.
func NewDateParser(layouts []string) *DateParser {
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	return &DateParser{layouts: layouts}
}

// Parse returns the calendar date in raw (UTC midnight) or false.
func (p *DateParser) Parse(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial < minExcelSerial || serial > maxExcelSerial || math.IsNaN(serial) {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return dateOnly(t), true
	}

	for _, layout := range p.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseYear accepts "2024", "2024.0" and " 2024 ". Years outside
// 1900..2200 are rejected.
func parseYear(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < 1900 || f > 2200 {
		return 0, false
	}
	return int(f), true
}

var monthNames = map[string]int{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
	"julio": 7, "agosto": 8, "septiembre": 9, "setiembre": 9, "octubre": 10,
	"noviembre": 11, "diciembre": 12,
	"ene": 1, "feb": 2, "mar": 3, "abr": 4, "may": 5, "jun": 6,
	"jul": 7, "ago": 8, "sep": 9, "sept": 9, "oct": 10, "nov": 11, "dic": 12,
	"january": 1, "february": 2, "march": 3, "april": 4, "june": 6, "july": 7,
	"august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "apr": 4, "aug": 8, "dec": 12,
}

// parseMonth accepts 1..12 (also "3.0") and Spanish or English month names.
func parseMonth(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f != math.Trunc(f) || f < 1 || f > 12 {
			return 0, false
		}
		return int(f), true
	}
	m, ok := monthNames[strings.TrimSuffix(normalize.Header(s), ".")]
	return m, ok
}

// maxDayCount bounds a day count to about a century either way.
const maxDayCount = 36500

// parseDays accepts whole day counts written as "12" or "12.0".
func parseDays(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxDayCount {
		return 0, false
	}
	return int(f), true
}
