package reconcile

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// =============================================================================
// TEXT RULES
// =============================================================================
// Text rules clean canonical text cells before they are stored or used as
// keys, e.g. mapping "M.N." and "Pesos" to "MXN" in the currency column.

// Transformer applies configured text rules to canonical fields.
type Transformer struct {
	rules map[types.Field][]config.TextAction
}

// NewTransformer indexes rules by field. Several rules for one field are
// applied in declaration order.
func NewTransformer(rules []config.TextRule) (*Transformer, error) {
	t := &Transformer{rules: make(map[types.Field][]config.TextAction)}
	for _, rule := range rules {
		for _, action := range rule.Actions {
			if !knownAction(action.Type) {
				return nil, fmt.Errorf("text rule for %q: unknown action %q", rule.Field, action.Type)
			}
		}
		field := types.Field(rule.Field)
		t.rules[field] = append(t.rules[field], rule.Actions...)
	}
	return t, nil
}

// Transform applies every action declared for field to value.
func (t *Transformer) Transform(field types.Field, value string) string {
	if t == nil {
		return value
	}
	for _, action := range t.rules[field] {
		value = ApplyAction(value, action)
	}
	return value
}

func knownAction(kind string) bool {
	switch kind {
	case "trim", "uppercase", "lowercase", "collapse_whitespace", "replace", "lookup", "default":
		return true
	}
	return false
}

// ApplyAction applies a single text action.
//
// SUPPORTED ACTIONS:
//
//	trim                 "  ACME " -> "ACME"
//	uppercase            "mxn" -> "MXN"
//	lowercase            "MXN" -> "mxn"
//	collapse_whitespace  "ACME   SA  DE CV" -> "ACME SA DE CV"
//	replace              find "." value "" : "M.N." -> "MN"
//	lookup               {"M.N.": "MXN"} : " m.n. " -> "MXN"
//	default              value "MXN" : "" -> "MXN"
func ApplyAction(value string, action config.TextAction) string {
	switch action.Type {
	case "trim":
		return strings.TrimSpace(value)

	case "uppercase":
		return strings.ToUpper(value)

	case "lowercase":
		return strings.ToLower(value)

	case "collapse_whitespace":
		return strings.Join(strings.Fields(value), " ")

	case "replace":
		if action.Find == "" {
			return value
		}
		return strings.ReplaceAll(value, action.Find, action.Value)

	case "lookup":
		key := strings.TrimSpace(value)
		if v, ok := action.LookupTable[key]; ok {
			return v
		}
		for _, k := range slices.Sorted(maps.Keys(action.LookupTable)) {
			if strings.EqualFold(strings.TrimSpace(k), key) {
				return action.LookupTable[k]
			}
		}
		return value

	case "default":
		if strings.TrimSpace(value) == "" {
			return action.Value
		}
		return value
	}
	return value
}
