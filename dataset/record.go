package dataset

import (
	"strings"
)

// Reserved columns written by operators.
const (
	// StatsColumn holds the per-record signals computed by filters.
	StatsColumn = "__stats__"
	// HashColumn holds the per-record hash computed by deduplicators.
	HashColumn = "__hash__"
)

// Record is one row of a dataset, keyed by column name.
type Record map[string]any

// Clone returns a deep copy of r. Nested maps and slices are copied so the
// clone can be mutated without touching r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Get returns the value at a dotted path such as "meta.score".
func (r Record) Get(path string) (any, bool) {
	if v, ok := r[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(r)
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value of key as a string, or "" when it is missing or
// not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Stats returns the stats map of r, creating it when absent.
func (r Record) Stats() map[string]any {
	if m, ok := asMap(r[StatsColumn]); ok {
		return m
	}
	m := map[string]any{}
	r[StatsColumn] = m
	return m
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
