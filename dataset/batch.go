package dataset

import "fmt"

// Batch is the columnar form of a run of records: one value slice per
// column, all of the same length.
type Batch struct {
	columns []string
	data    map[string][]any
	n       int
}

// NewBatch returns an empty batch with the given columns.
func NewBatch(columns []string) *Batch {
	b := &Batch{data: make(map[string][]any, len(columns))}
	for _, c := range columns {
		b.addColumn(c)
	}
	return b
}

// BatchOf converts records into columnar form. Columns absent from a record
// read as nil. Values are deep-copied.
func BatchOf(columns []string, records []Record) *Batch {
	b := NewBatch(columns)
	for _, r := range records {
		b.Append(r)
	}
	return b
}

// FromColumns builds a batch directly from column slices, which are used
// as-is. The row count is taken from the first column; callers that accept
// batches from untrusted code should check IsAligned.
func FromColumns(columns []string, data map[string][]any) *Batch {
	b := &Batch{columns: append([]string(nil), columns...), data: make(map[string][]any, len(columns))}
	for _, c := range columns {
		b.data[c] = data[c]
	}
	if len(columns) > 0 {
		b.n = len(data[columns[0]])
	}
	return b
}

// Len returns the number of rows.
func (b *Batch) Len() int { return b.n }

// Columns returns the column names in order.
func (b *Batch) Columns() []string {
	return append([]string(nil), b.columns...)
}

// Column returns the values of one column, or nil if it does not exist.
func (b *Batch) Column(name string) []any {
	return b.data[name]
}

// SetColumn replaces or adds a column. The value count must match Len unless
// the batch has no columns yet.
func (b *Batch) SetColumn(name string, values []any) error {
	if len(b.columns) > 0 && len(values) != b.n {
		return fmt.Errorf("dataset: column %q has %d values, batch has %d rows", name, len(values), b.n)
	}
	if _, ok := b.data[name]; !ok {
		b.columns = append(b.columns, name)
	}
	b.data[name] = values
	b.n = len(values)
	return nil
}

// Row converts row i back into a record.
func (b *Batch) Row(i int) Record {
	r := make(Record, len(b.columns))
	for _, c := range b.columns {
		r[c] = cloneValue(b.data[c][i])
	}
	return r
}

// Rows converts the whole batch back into records.
func (b *Batch) Rows() []Record {
	out := make([]Record, b.n)
	for i := range out {
		out[i] = b.Row(i)
	}
	return out
}

// Append adds one record as a new row. Columns the batch has not seen yet
// are added and backfilled with nil for earlier rows.
func (b *Batch) Append(r Record) {
	for _, k := range sortedKeys(r) {
		if _, ok := b.data[k]; !ok {
			b.addColumn(k)
		}
	}
	for _, c := range b.columns {
		b.data[c] = append(b.data[c], cloneValue(r[c]))
	}
	b.n++
}

// IsAligned reports whether every column has exactly Len values.
func (b *Batch) IsAligned() bool {
	for _, c := range b.columns {
		if len(b.data[c]) != b.n {
			return false
		}
	}
	return true
}

func (b *Batch) addColumn(name string) {
	b.columns = append(b.columns, name)
	b.data[name] = make([]any, b.n, b.n+1)
}
