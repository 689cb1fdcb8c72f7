// =============================================================================
// Fradma Dashboard - Alias Resolver
// =============================================================================
//
// Maps canonical fields to the columns of a normalized table. Alias lists
// come from configuration and are ordered by business priority: for the
// amount field, USD-denominated spellings come before local-currency ones.
//
// USAGE:
//   set := alias.NewHeaderSet(normalize.Headers(raw.Headers))
//   m, ok := alias.Resolve(set, "valor_usd", []string{"valor_usd", "ventas_usd", "valor_mn", "importe"})
//
// =============================================================================

package alias

import (
	"github.com/B10sp4rt4n/fradma-dashboard/internal/normalize"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// HeaderSet maps a normalized header to the index of its first column.
type HeaderSet map[string]int

// NewHeaderSet indexes normalized headers. When two columns share a name the
// first one wins.
func NewHeaderSet(normalized []string) HeaderSet {
	set := make(HeaderSet, len(normalized))
	for i, h := range normalized {
		if _, seen := set[h]; !seen {
			set[h] = i
		}
	}
	return set
}

// Has reports whether header is present.
func (s HeaderSet) Has(header string) bool {
	_, ok := s[header]
	return ok
}

// Match is the column chosen for a canonical field.
type Match struct {
	// Field is the canonical field that was resolved.
	Field types.Field

	// Alias is the alias that matched.
	Alias string

	// Index is the column index in the table.
	Index int
}

// Resolve returns the first alias, in the given order, present in headers.
func Resolve(headers HeaderSet, field types.Field, aliases []string) (Match, bool) {
	for _, a := range aliases {
		if idx, ok := headers[a]; ok {
			return Match{Field: field, Alias: a, Index: idx}, true
		}
	}
	return Match{}, false
}

// =============================================================================
// ALIAS TABLE
// =============================================================================

// Table holds the alias list of every canonical field, normalized once.
type Table struct {
	aliases map[types.Field][]string
}

// NewTable builds a Table from configuration data. Aliases are normalized
// so configuration may spell them with accents or capitals; duplicates
// after normalization are dropped keeping the first.
func NewTable(raw map[string][]string) *Table {
	t := &Table{aliases: make(map[types.Field][]string, len(raw))}
	for field, list := range raw {
		t.aliases[types.Field(field)] = normalizeList(list)
	}
	return t
}

// With returns a copy of the table with field's aliases replaced.
func (t *Table) With(field types.Field, aliases []string) *Table {
	out := &Table{aliases: make(map[types.Field][]string, len(t.aliases))}
	for f, list := range t.aliases {
		out.aliases[f] = list
	}
	out.aliases[field] = normalizeList(aliases)
	return out
}

// Aliases returns the ordered aliases of field.
func (t *Table) Aliases(field types.Field) []string {
	return t.aliases[field]
}

// Resolve finds field's column in headers.
func (t *Table) Resolve(headers HeaderSet, field types.Field) (Match, bool) {
	return Resolve(headers, field, t.aliases[field])
}

// ResolveAll resolves every canonical field the table knows about.
func (t *Table) ResolveAll(headers HeaderSet) map[types.Field]Match {
	out := make(map[types.Field]Match)
	for _, field := range types.Fields {
		if m, ok := t.Resolve(headers, field); ok {
			out[field] = m
		}
	}
	return out
}

// Score counts how many canonical fields resolve against raw headers. It is
// used to pick the most plausible sheet or header row.
func (t *Table) Score(rawHeaders []string) int {
	headers := NewHeaderSet(normalize.Headers(rawHeaders))
	score := 0
	for field := range t.aliases {
		if _, ok := t.Resolve(headers, field); ok {
			score++
		}
	}
	return score
}

func normalizeList(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, a := range list {
		n := normalize.Header(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
