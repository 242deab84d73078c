package op

import (
	"fmt"
	"sort"
	"sync"
)

// Ref names one operator position in a plan.
type Ref struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Key is the status-table key of r, "<index>:<name>".
func (r Ref) Key() string { return fmt.Sprintf("%d:%s", r.Index, r.Name) }

// StatusEntry is one row of a StatusTable.
type StatusEntry struct {
	Ref
	Status Status `json:"status"`
}

// StatusTable is the per-position status view of a run. A position that
// reached a terminal status never moves back.
type StatusTable struct {
	mu      sync.RWMutex
	entries map[string]StatusEntry
}

// NewStatusTable returns an empty table.
func NewStatusTable() *StatusTable {
	return &StatusTable{entries: map[string]StatusEntry{}}
}

// Set records s for ref and reports whether the table changed.
func (t *StatusTable) Set(ref Ref, s Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.entries[ref.Key()]
	if ok && (cur.Status == s || cur.Status.IsTerminal()) {
		return false
	}
	t.entries[ref.Key()] = StatusEntry{Ref: ref, Status: s}
	return true
}

// Get returns the status recorded for ref.
func (t *StatusTable) Get(ref Ref) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[ref.Key()]
	return e.Status, ok
}

// Entries returns all rows ordered by pipeline index.
func (t *StatusTable) Entries() []StatusEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]StatusEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Name < out[j].Name
	})
	return out
}
