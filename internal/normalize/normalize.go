// =============================================================================
// Fradma Dashboard - Column Normalizer
// =============================================================================
//
// Header turns an arbitrary spreadsheet header into a canonical token:
//
//   "  Línea de\nProducto " -> "linea_de_producto"
//   "AÃ±o"                  -> "ano"   (UTF-8 read as Windows-1252, then re-encoded)
//   "aã±o"                  -> "ano"   (the same, after a lower() pass)
//
// STEPS:
//   1. Repair mis-decoded UTF-8 (mojibake)
//   2. Lowercase
//   3. Repair lowercased mojibake pairs that no longer round-trip
//   4. Split on whitespace (including newlines) and join with "_"
//   5. Transliterate accented Latin letters, then drop any remaining
//      combining marks
//
// The output contains no whitespace, no uppercase and no combining marks, so
// running Header on its own output is a no-op.
//
// =============================================================================

package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accents is the fixed transliteration table. It runs before the generic
// mark-stripping pass so these letters never depend on normalization form.
var accents = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"à", "a", "è", "e", "ì", "i", "ò", "o", "ù", "u",
	"ä", "a", "ë", "e", "ï", "i", "ö", "o", "ü", "u",
	"â", "a", "ê", "e", "î", "i", "ô", "o", "û", "u",
	"ñ", "n", "ç", "c",
)

// lowerMojibake maps lowercased Windows-1252 renderings of UTF-8 accented
// letters back to the letter. Once "Ã" has been lowered to "ã" the pair no
// longer re-encodes, so these are matched literally.
var lowerMojibake = strings.NewReplacer(
	"ã¡", "á", "ã©", "é", "ã\u00ad", "í", "ã³", "ó", "ãº", "ú",
	"ã±", "ñ", "ã¼", "ü", "ã‘", "ñ", "ã“", "ó", "ãš", "ú",
	"ã‰", "é", "ã\u0081", "á", "ã\u008d", "í",
	"â°", "°", "â\u00a0", " ",
)

// Header returns the canonical form of one header string.
func Header(header string) string {
	s := repairMojibake(header)
	s = strings.ToLower(s)
	s = lowerMojibake.Replace(s)
	s = strings.Join(strings.Fields(s), "_")
	s = accents.Replace(s)
	return stripMarks(s)
}

// Headers normalizes every header of a table, preserving order and
// duplicates. Collisions are left for the caller to resolve.
func Headers(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = Header(h)
	}
	return out
}

// Equal reports whether two headers normalize to the same token.
func Equal(a, b string) bool {
	return Header(a) == Header(b)
}

// repairMojibake undoes UTF-8 text that was decoded as Windows-1252, up to
// two layers deep. Text that does not round-trip is returned unchanged.
func repairMojibake(s string) string {
	for i := 0; i < 2; i++ {
		if !strings.ContainsAny(s, "ÃÂ") {
			return s
		}
		raw, err := charmap.Windows1252.NewEncoder().String(s)
		if err != nil || !utf8.ValidString(raw) || raw == s {
			return s
		}
		s = raw
	}
	return s
}

// stripMarks removes combining marks left after decomposition, catching
// accented letters outside the fixed table.
func stripMarks(s string) string {
	if isASCII(s) {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
