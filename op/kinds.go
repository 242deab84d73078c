package op

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kbukum/dataflow/dataset"
)

// RecordMapper edits one record at a time.
type RecordMapper interface {
	Process(ctx context.Context, r dataset.Record) (dataset.Record, error)
}

// BatchMapper edits a whole columnar chunk at once.
type BatchMapper interface {
	ProcessBatch(ctx context.Context, b *dataset.Batch) (*dataset.Batch, error)
}

// FilterLogic is what a concrete filter supplies.
type FilterLogic interface {
	// StatsKeys lists the keys ComputeStats writes under the stats column.
	StatsKeys() []string
	ComputeStats(ctx context.Context, r dataset.Record) (dataset.Record, error)
	Keep(r dataset.Record) (bool, error)
}

// DedupLogic is what a concrete deduplicator supplies.
type DedupLogic interface {
	ComputeHash(ctx context.Context, r dataset.Record) (dataset.Record, error)
	// Dedup removes duplicates and returns up to traceN duplicate pairs.
	Dedup(ctx context.Context, ds *dataset.Dataset, traceN int) (*dataset.Dataset, []DupPair, error)
}

// SelectorLogic is what a concrete selector supplies.
type SelectorLogic interface {
	Select(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error)
}

type statefulness interface {
	Stateful() bool
}

func isStateful(v any) bool {
	s, ok := v.(statefulness)
	return ok && s.Stateful()
}

func mapOptions(o Options, np int) dataset.MapOptions {
	return dataset.MapOptions{Workers: np, BatchSize: o.BatchSize}
}

// Mapper runs a RecordMapper, or a BatchMapper when the logic is batched.
type Mapper struct {
	Base
	logic any
}

// NewMapper wraps logic, which must implement RecordMapper or BatchMapper.
func NewMapper(base Base, logic any) *Mapper {
	switch logic.(type) {
	case RecordMapper, BatchMapper:
	default:
		panic(fmt.Sprintf("op: mapper %s: %T implements neither RecordMapper nor BatchMapper", base.name, logic))
	}
	base.kind = KindMapper
	return &Mapper{Base: base, logic: logic}
}

// Batched reports whether the mapper works on whole chunks.
func (m *Mapper) Batched() bool {
	_, ok := m.logic.(BatchMapper)
	return ok
}

// Stateful implements Operator.
func (m *Mapper) Stateful() bool { return isStateful(m.logic) }

// Run implements Operator.
func (m *Mapper) Run(ctx context.Context, rc *RunContext, ds *dataset.Dataset) (*dataset.Dataset, error) {
	return m.Execute(ctx, rc, ds, m.Stateful(), func(ctx context.Context, inv Invocation, ds *dataset.Dataset) (*dataset.Dataset, TraceEvent, error) {
		var fn dataset.BatchFunc
		if bm, ok := m.logic.(BatchMapper); ok {
			fn = inv.Guard.Batch(ctx, bm.ProcessBatch)
		} else {
			fn = inv.Guard.Single(ctx, m.logic.(RecordMapper).Process)
		}
		out, err := ds.MapBatches(ctx, mapOptions(m.opts, inv.NumProc), fn)
		if err != nil {
			return nil, TraceEvent{}, err
		}
		ev := TraceEvent{}
		if rc.Tracing(m.name) {
			ev.Changed = changedSamples(ds, out, m.opts.TextKey, rc.TraceNum)
		}
		return out, ev, nil
	})
}

// changedSamples pairs records by position and keeps those whose text
// changed. Pairing is only meaningful when nothing was dropped.
func changedSamples(before, after *dataset.Dataset, key string, limit int) []Change {
	if before.Len() != after.Len() {
		return nil
	}
	var out []Change
	for i := 0; i < before.Len() && len(out) < limit; i++ {
		b, a := before.At(i), after.At(i)
		if fmt.Sprint(b[key]) != fmt.Sprint(a[key]) {
			out = append(out, Change{Before: b, After: a})
		}
	}
	return out
}

// Filter computes stats for every record, then keeps those Keep accepts.
type Filter struct {
	Base
	logic FilterLogic
}

// NewFilter wraps logic as a filter operator.
func NewFilter(base Base, logic FilterLogic) *Filter {
	base.kind = KindFilter
	return &Filter{Base: base, logic: logic}
}

// Logic returns the wrapped filter logic.
func (f *Filter) Logic() FilterLogic { return f.logic }

// StatsKeys returns the stats keys the filter writes.
func (f *Filter) StatsKeys() []string { return f.logic.StatsKeys() }

// Stateful implements Operator.
func (f *Filter) Stateful() bool { return isStateful(f.logic) }

// Run implements Operator.
func (f *Filter) Run(ctx context.Context, rc *RunContext, ds *dataset.Dataset) (*dataset.Dataset, error) {
	return f.Execute(ctx, rc, ds, f.Stateful(), func(ctx context.Context, inv Invocation, ds *dataset.Dataset) (*dataset.Dataset, TraceEvent, error) {
		stats, err := ComputeStats(ctx, ds, mapOptions(f.opts, inv.NumProc), inv.Guard, f.logic.ComputeStats)
		if err != nil {
			return nil, TraceEvent{}, err
		}
		if err := ExportStats(f.opts.StatsExportPath, stats); err != nil {
			return nil, TraceEvent{}, err
		}
		mask, err := stats.FilterMask(ctx, inv.NumProc, inv.Guard.Predicate(f.logic.Keep))
		if err != nil {
			return nil, TraceEvent{}, err
		}
		ev := TraceEvent{}
		if rc.Tracing(f.name) {
			ev.Removed = RemovedSamples(stats, mask, rc.TraceNum)
		}
		return stats.Where(mask), ev, nil
	})
}

// ComputeStats adds the stats column when missing and runs fn over every
// record under the single-record guard.
func ComputeStats(ctx context.Context, ds *dataset.Dataset, opts dataset.MapOptions, g Guard, fn RecordFunc) (*dataset.Dataset, error) {
	ds = ds.WithColumn(dataset.StatsColumn, func() any { return map[string]any{} })
	return ds.MapBatches(ctx, opts, g.Single(ctx, fn))
}

// ExportStats writes each record's stats as JSONL to path. An empty path
// is a no-op.
func ExportStats(path string, ds *dataset.Dataset) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("stats export: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stats export: %w", err)
	}
	defer f.Close()
	if err := dataset.WriteJSONL(f, ds.SelectColumns(dataset.StatsColumn)); err != nil {
		return fmt.Errorf("stats export: %w", err)
	}
	return f.Close()
}

// RemovedSamples returns up to limit records the mask rejected.
func RemovedSamples(ds *dataset.Dataset, mask []bool, limit int) []dataset.Record {
	var out []dataset.Record
	for i, keep := range mask {
		if len(out) >= limit {
			break
		}
		if !keep {
			out = append(out, ds.At(i))
		}
	}
	return out
}

// Deduplicator hashes every record, then removes duplicates.
type Deduplicator struct {
	Base
	logic DedupLogic
}

// NewDeduplicator wraps logic as a deduplicator operator.
func NewDeduplicator(base Base, logic DedupLogic) *Deduplicator {
	base.kind = KindDeduplicator
	return &Deduplicator{Base: base, logic: logic}
}

// Stateful implements Operator.
func (d *Deduplicator) Stateful() bool { return isStateful(d.logic) }

// Run implements Operator.
func (d *Deduplicator) Run(ctx context.Context, rc *RunContext, ds *dataset.Dataset) (*dataset.Dataset, error) {
	return d.Execute(ctx, rc, ds, d.Stateful(), func(ctx context.Context, inv Invocation, ds *dataset.Dataset) (*dataset.Dataset, TraceEvent, error) {
		hashed, err := ds.MapBatches(ctx, mapOptions(d.opts, inv.NumProc), inv.Guard.Single(ctx, d.logic.ComputeHash))
		if err != nil {
			return nil, TraceEvent{}, err
		}
		traceN := 0
		if rc.Tracing(d.name) {
			traceN = rc.TraceNum
		}
		out, pairs, err := d.logic.Dedup(ctx, hashed, traceN)
		if err != nil {
			return nil, TraceEvent{}, err
		}
		return out, TraceEvent{Duplicates: pairs}, nil
	})
}

// Selector picks a subset of the dataset as a whole.
type Selector struct {
	Base
	logic SelectorLogic
}

// NewSelector wraps logic as a selector operator.
func NewSelector(base Base, logic SelectorLogic) *Selector {
	base.kind = KindSelector
	return &Selector{Base: base, logic: logic}
}

// Stateful implements Operator.
func (s *Selector) Stateful() bool { return isStateful(s.logic) }

// Run implements Operator.
func (s *Selector) Run(ctx context.Context, rc *RunContext, ds *dataset.Dataset) (*dataset.Dataset, error) {
	return s.Execute(ctx, rc, ds, s.Stateful(), func(ctx context.Context, _ Invocation, ds *dataset.Dataset) (*dataset.Dataset, TraceEvent, error) {
		out, err := s.logic.Select(ctx, ds)
		if err != nil || out == nil {
			return out, TraceEvent{}, err
		}
		ev := TraceEvent{}
		if rc.Tracing(s.name) {
			ev.Removed = unselectedSamples(ds, out, rc.TraceNum)
		}
		return out, ev, nil
	})
}

// unselectedSamples returns up to limit records of before that are missing
// from after. Selectors may reorder, so records are matched by content and
// each output record accounts for one input record.
func unselectedSamples(before, after *dataset.Dataset, limit int) []dataset.Record {
	kept := make(map[string]int, after.Len())
	for _, r := range after.Records() {
		kept[fmt.Sprint(r)]++
	}
	var out []dataset.Record
	for i := 0; i < before.Len() && len(out) < limit; i++ {
		r := before.At(i)
		key := fmt.Sprint(r)
		if kept[key] > 0 {
			kept[key]--
			continue
		}
		out = append(out, r)
	}
	return out
}
