// Package rowkey computes the content hash used as the natural key of the
// deduplicating store.
//
// The key covers date, invoice id, product code, quantity, amount and
// customer, joined with "|" and hashed with SHA-256. A "|" or "\" inside a
// value is escaped first, so ("a|b", "c") and ("a", "b|c") hash differently.
package rowkey

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// Delimiter separates field values before hashing.
const Delimiter = "|"

// Size is the length of a key in hex characters.
const Size = sha256.Size * 2

var escaper = strings.NewReplacer(`\`, `\\`, Delimiter, `\`+Delimiter)

// HashKey returns the hex SHA-256 digest of the escaped, joined fields.
func HashKey(fields ...string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escaper.Replace(f)
	}
	sum := sha256.Sum256([]byte(strings.Join(escaped, Delimiter)))
	return hex.EncodeToString(sum[:])
}

// Fields returns the ordered key fields of row as strings. Nil values
// render as the empty string.
func Fields(row types.CanonicalRow) []string {
	return []string{
		formatDate(row.Date),
		row.InvoiceID,
		row.ProductCode,
		formatFloat(row.Quantity),
		formatFloat(row.AmountUSD),
		row.Customer,
	}
}

// ForRow returns the content hash of row.
func ForRow(row types.CanonicalRow) string {
	return HashKey(Fields(row)...)
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(time.DateOnly)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
