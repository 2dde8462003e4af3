package fields

import (
	"strings"

	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// Index answers alias lookups against one row. Build it once per row when
// resolving many fields.
type Index struct {
	row        payload.Object
	normalized map[string]string // normalized header -> original header
}

// NewIndex prepares row for repeated Resolve calls.
func NewIndex(row payload.Object) *Index {
	normalized := make(map[string]string, len(row))
	for key := range row {
		n := normalizeKey(key)
		// Collisions keep the lexicographically smallest original header so
		// resolution does not depend on map iteration order.
		if prev, ok := normalized[n]; !ok || key < prev {
			normalized[n] = key
		}
	}
	return &Index{row: row, normalized: normalized}
}

// Resolve finds the value for the first matching alias.
//
// Pass one tries each alias verbatim, in order. Only if none is present, pass
// two compares lowercased headers with ASCII spaces removed. The boolean is
// false when no alias matched; a matched header holding null reports true
// with a null Value, which callers treat the same as absent.
func (ix *Index) Resolve(aliases []string) (payload.Value, bool) {
	for _, alias := range aliases {
		if v, ok := ix.row[alias]; ok {
			return v, true
		}
	}
	for _, alias := range aliases {
		if key, ok := ix.normalized[normalizeKey(alias)]; ok {
			return ix.row[key], true
		}
	}
	return payload.Null(), false
}

// Resolve is a one-off lookup of aliases in row.
func Resolve(row payload.Object, aliases []string) (payload.Value, bool) {
	return NewIndex(row).Resolve(aliases)
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), " ", "")
}
