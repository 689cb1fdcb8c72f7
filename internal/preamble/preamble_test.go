package preamble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
)

// keywordScore counts cells that look like known headers.
func keywordScore(cells []string) int {
	n := 0
	for _, c := range cells {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "fecha", "cliente", "importe", "factura":
			n++
		}
	}
	return n
}

var contpaqSheet = [][]string{
	{"CONTPAQ i  FACTURACIÓN", "", ""},
	{"Empresa Demo SA de CV", "", ""},
	{"Del 01/01/2024 al 31/01/2024", "", ""},
	{"", "", ""},
	{"Fecha", "Cliente", "Importe"},
	{"2024-01-05", "ACME", "10"},
}

func TestHeaderRowScoresRows(t *testing.T) {
	d := &Detector{Markers: []string{"CONTPAQ"}, Score: keywordScore}
	assert.Equal(t, 4, d.HeaderRow(contpaqSheet))
}

func TestHeaderRowFixedSkipWhenMarkerFound(t *testing.T) {
	d := &Detector{Markers: []string{"contpaq"}, SkipRows: 4, Score: keywordScore}
	assert.Equal(t, 4, d.HeaderRow(contpaqSheet))

	plain := [][]string{{"Fecha", "Cliente", "Importe"}, {"2024-01-05", "ACME", "10"}}
	assert.Equal(t, 0, d.HeaderRow(plain), "no marker means no fixed skip")
}

func TestHeaderRowFallsBackToFirstNonEmpty(t *testing.T) {
	rows := [][]string{{"", ""}, {"a", "b"}, {"c", "d"}}
	assert.Equal(t, 1, (&Detector{Score: keywordScore}).HeaderRow(rows))

	var nilDetector *Detector
	assert.Equal(t, 1, nilDetector.HeaderRow(rows))
	assert.Equal(t, 0, nilDetector.HeaderRow(nil))
}

func TestHeaderRowRespectsScanLimit(t *testing.T) {
	rows := make([][]string, 0, 30)
	for i := 0; i < 25; i++ {
		rows = append(rows, []string{"titulo"})
	}
	rows = append(rows, []string{"Fecha", "Cliente"})

	d := &Detector{Score: keywordScore, ScanRows: 20}
	assert.Equal(t, 0, d.HeaderRow(rows))
}

func TestHeaderRowTakesFirstQualifyingRow(t *testing.T) {
	rows := [][]string{
		{"Fecha", "Cliente", "x"},
		{"Fecha", "Cliente", "Importe", "Factura"},
	}
	assert.Equal(t, 0, (&Detector{Score: keywordScore}).HeaderRow(rows))
}

func TestFromConfig(t *testing.T) {
	d := FromConfig(config.InputConfig{PreambleMarkers: []string{"ASPEL"}, PreambleSkipRows: 3, HeaderScanRows: 10}, keywordScore)
	assert.Equal(t, []string{"ASPEL"}, d.Markers)
	assert.Equal(t, 3, d.SkipRows)
	assert.Equal(t, 10, d.ScanRows)
	assert.NotNil(t, d.Score)
}

func TestIsRowEmpty(t *testing.T) {
	assert.True(t, IsRowEmpty([]string{"", "  "}))
	assert.True(t, IsRowEmpty(nil))
	assert.False(t, IsRowEmpty([]string{"", "x"}))
}
