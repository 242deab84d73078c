package dataset

import (
	"context"
	"maps"
	"math/rand"
	"slices"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of rows handed to a batch function at once.
const DefaultBatchSize = 1000

// BatchFunc transforms one columnar chunk. A non-nil error aborts the whole
// pass; record-level faults are expected to be contained by the caller.
type BatchFunc func(*Batch) (*Batch, error)

// Predicate decides whether a record is kept.
type Predicate func(Record) bool

// MapOptions configures a parallel pass.
type MapOptions struct {
	// Workers bounds the number of chunks processed concurrently.
	Workers int
	// BatchSize is the number of rows per chunk.
	BatchSize int
}

// Dataset is an immutable, ordered record collection. Every transformation
// returns a new Dataset and leaves the receiver untouched.
type Dataset struct {
	columns []string
	records []Record
}

// New builds a dataset from records. The schema is the union of all keys in
// first-seen order; missing values read as nil. Records are copied.
func New(records []Record) *Dataset {
	cols := unionColumns(nil, records)
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = normalize(cols, r.Clone())
	}
	return &Dataset{columns: cols, records: out}
}

// Empty returns a dataset with no rows.
func Empty() *Dataset { return &Dataset{} }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Columns returns the schema in order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// HasColumn reports whether name is part of the schema.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.columns {
		if c == name {
			return true
		}
	}
	return false
}

// At returns a copy of record i.
func (d *Dataset) At(i int) Record { return d.records[i].Clone() }

// Records returns copies of all records in order.
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	for i, r := range d.records {
		out[i] = r.Clone()
	}
	return out
}

// MapBatches runs fn over the dataset in columnar chunks on a bounded worker
// pool. Output order follows input order regardless of scheduling.
func (d *Dataset) MapBatches(ctx context.Context, opts MapOptions, fn BatchFunc) (*Dataset, error) {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := chunkBounds(len(d.records), size)
	results := make([]*Batch, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(opts.Workers))
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := fn(BatchOf(d.columns, d.records[c[0]:c[1]]))
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fromBatches(d.columns, results), nil
}

// Filter keeps the records for which pred returns true. The result is a
// stable subsequence of the receiver.
func (d *Dataset) Filter(ctx context.Context, workers int, pred Predicate) (*Dataset, error) {
	mask, err := d.FilterMask(ctx, workers, pred)
	if err != nil {
		return nil, err
	}
	return d.Where(mask), nil
}

// FilterMask evaluates pred for every record in parallel and returns the
// keep mask in record order.
func (d *Dataset) FilterMask(ctx context.Context, workers int, pred Predicate) ([]bool, error) {
	mask := make([]bool, len(d.records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(workers))
	for _, c := range chunkBounds(len(d.records), DefaultBatchSize) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := c[0]; i < c[1]; i++ {
				mask[i] = pred(d.records[i].Clone())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mask, nil
}

// Where keeps the records whose mask entry is true.
func (d *Dataset) Where(mask []bool) *Dataset {
	out := make([]Record, 0, len(d.records))
	for i, keep := range mask {
		if keep {
			out = append(out, d.records[i])
		}
	}
	return &Dataset{columns: d.Columns(), records: out}
}

// Indices returns the records at idx, in the order given.
func (d *Dataset) Indices(idx []int) *Dataset {
	out := make([]Record, len(idx))
	for i, j := range idx {
		out[i] = d.records[j]
	}
	return &Dataset{columns: d.Columns(), records: out}
}

// Take returns the first n records.
func (d *Dataset) Take(n int) *Dataset {
	if n > len(d.records) {
		n = len(d.records)
	}
	if n < 0 {
		n = 0
	}
	return &Dataset{columns: d.Columns(), records: append([]Record(nil), d.records[:n]...)}
}

// Shuffle returns a deterministic permutation of the dataset for seed.
func (d *Dataset) Shuffle(seed int64) *Dataset {
	perm := rand.New(rand.NewSource(seed)).Perm(len(d.records))
	return d.Indices(perm)
}

// WithColumn adds a column when it is missing, filling it with value().
// A dataset that already has the column is returned unchanged.
func (d *Dataset) WithColumn(name string, value func() any) *Dataset {
	if d.HasColumn(name) {
		return d
	}
	out := make([]Record, len(d.records))
	for i, r := range d.records {
		c := make(Record, len(r)+1)
		for k, v := range r {
			c[k] = v
		}
		c[name] = value()
		out[i] = c
	}
	return &Dataset{columns: append(d.Columns(), name), records: out}
}

// RemoveColumns drops the named columns.
func (d *Dataset) RemoveColumns(names ...string) *Dataset {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]string, 0, len(d.columns))
	for _, c := range d.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return d.SelectColumns(keep...)
}

// SelectColumns keeps only the named columns, in the order given.
func (d *Dataset) SelectColumns(names ...string) *Dataset {
	cols := make([]string, 0, len(names))
	for _, n := range names {
		if d.HasColumn(n) {
			cols = append(cols, n)
		}
	}
	out := make([]Record, len(d.records))
	for i, r := range d.records {
		c := make(Record, len(cols))
		for _, k := range cols {
			c[k] = r[k]
		}
		out[i] = c
	}
	return &Dataset{columns: cols, records: out}
}

// Concat appends datasets in order, unioning their schemas.
func Concat(sets ...*Dataset) *Dataset {
	var cols []string
	var all []Record
	for _, s := range sets {
		if s == nil {
			continue
		}
		cols = appendColumns(cols, s.columns)
		all = append(all, s.records...)
	}
	out := make([]Record, len(all))
	for i, r := range all {
		out[i] = padded(cols, r)
	}
	return &Dataset{columns: cols, records: out}
}

func fromBatches(base []string, batches []*Batch) *Dataset {
	cols := append([]string(nil), base...)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	var records []Record
	for _, b := range batches {
		if b == nil {
			continue
		}
		for _, c := range b.columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
		for i := 0; i < b.n; i++ {
			r := make(Record, len(b.columns))
			for _, c := range b.columns {
				r[c] = b.data[c][i]
			}
			records = append(records, r)
		}
	}
	// Columns dropped by every batch leave the schema.
	if len(batches) > 0 {
		present := map[string]bool{}
		for _, b := range batches {
			if b == nil {
				continue
			}
			for _, c := range b.columns {
				present[c] = true
			}
		}
		kept := cols[:0]
		for _, c := range cols {
			if present[c] {
				kept = append(kept, c)
			}
		}
		cols = kept
	}
	for i, r := range records {
		records[i] = normalize(cols, r)
	}
	return &Dataset{columns: cols, records: records}
}

func unionColumns(cols []string, records []Record) []string {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	for _, r := range records {
		for _, k := range sortedKeys(r) {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

func appendColumns(cols, more []string) []string {
	for _, c := range more {
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func sortedKeys(r Record) []string {
	return slices.Sorted(maps.Keys(r))
}

func normalize(cols []string, r Record) Record {
	for _, c := range cols {
		if _, ok := r[c]; !ok {
			r[c] = nil
		}
	}
	return r
}

// padded is normalize for shared records: r is copied before it is filled.
func padded(cols []string, r Record) Record {
	if len(r) == len(cols) {
		return r
	}
	c := make(Record, len(cols))
	for k, v := range r {
		c[k] = v
	}
	return normalize(cols, c)
}

func chunkBounds(n, size int) [][2]int {
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

func workerLimit(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
