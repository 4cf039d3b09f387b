// Package normalize canonicalizes raw report rows into the key set of one
// table. It performs no I/O and holds no state.
package normalize

import (
	"sort"
	"strings"

	"github.com/rickgao/ercot-data/internal/model"
	"github.com/rickgao/ercot-data/internal/schema"
)

// Normalize maps raw keys to the table's canonical keys and cleans values.
//
// Unmapped keys pass through unchanged. String values are trimmed and blank
// strings become nil. When the table's id key is absent, a recognized
// alternate id key is renamed to it. Normalizing an already canonical record
// returns an equal record.
func Normalize(raw model.Record, t *schema.Table) model.Record {
	out := make(model.Record, len(raw))

	// Sorted so that when two raw spellings map to one canonical key the
	// winner does not depend on map order.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var alternates []string
	for _, k := range keys {
		v := cleanValue(k, raw[k])

		if isAlternateID(t, k) {
			alternates = append(alternates, k)
			continue
		}

		key := k
		if canonical, ok := t.Canonical(k); ok {
			key = canonical
		}
		if existing, seen := out[key]; seen && existing != nil {
			continue
		}
		out[key] = v
	}

	for _, k := range alternates {
		v := cleanValue(k, raw[k])
		if t.IDKey != "" && out[t.IDKey] == nil {
			out[t.IDKey] = v
			continue
		}
		if _, seen := out[k]; !seen {
			out[k] = v
		}
	}

	return out
}

// NormalizeAll applies Normalize to every record.
func NormalizeAll(raws []model.Record, t *schema.Table) []model.Record {
	out := make([]model.Record, len(raws))
	for i, r := range raws {
		out[i] = Normalize(r, t)
	}
	return out
}

// Project keeps only the table's columns and returns the names of the keys
// it removed, sorted.
func Project(rec model.Record, t *schema.Table) (model.Record, []string) {
	out := make(model.Record, len(rec))
	var dropped []string
	for k, v := range rec {
		if _, ok := t.Column(k); ok {
			out[k] = v
			continue
		}
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	return out, dropped
}

// Missing returns the required keys of t that are absent or nil in rec.
func Missing(rec model.Record, t *schema.Table) []string {
	var missing []string
	for _, k := range t.RequiredKeys() {
		if rec[k] == nil {
			missing = append(missing, k)
		}
	}
	return missing
}

func isAlternateID(t *schema.Table, raw string) bool {
	folded := schema.FoldKey(raw)
	for _, alt := range t.IDAlternates {
		if schema.FoldKey(alt) == folded {
			return true
		}
	}
	return false
}

// cleanValue trims strings and turns blanks into nil. Keys naming MW, price
// or award quantities get the same treatment for whitespace-only values so
// that numeric columns never receive an empty string.
func cleanValue(key string, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if isNumericKey(key) && (s == "-" || strings.EqualFold(s, "null")) {
		return nil
	}
	return s
}

func isNumericKey(key string) bool {
	u := strings.ToUpper(key)
	return strings.Contains(u, "MW") || strings.Contains(u, "PRICE") || strings.Contains(u, "AWARD")
}
