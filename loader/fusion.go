package loader

import (
	"context"
	"strings"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/op"
)

// Fuse merges maximal runs of adjacent stateless filters. Within a run, a
// filter whose stats keys overlap keys already claimed by the current group
// starts a new group. Groups of two or more become a FusedFilter; fusion
// never crosses a non-filter operator.
func Fuse(ops []op.Operator) []op.Operator {
	out := make([]op.Operator, 0, len(ops))
	var window []*op.Filter
	flush := func() {
		out = append(out, group(window)...)
		window = nil
	}
	for _, o := range ops {
		if f, ok := o.(*op.Filter); ok && !f.Stateful() {
			window = append(window, f)
			continue
		}
		flush()
		out = append(out, o)
	}
	flush()
	return out
}

func group(window []*op.Filter) []op.Operator {
	var out []op.Operator
	var cur []*op.Filter
	claimed := map[string]bool{}
	emit := func() {
		switch len(cur) {
		case 0:
		case 1:
			out = append(out, cur[0])
		default:
			out = append(out, NewFusedFilter(cur))
		}
		cur = nil
		claimed = map[string]bool{}
	}
	for _, f := range window {
		keys := f.StatsKeys()
		for _, k := range keys {
			if claimed[k] {
				emit()
				break
			}
		}
		cur = append(cur, f)
		for _, k := range keys {
			claimed[k] = true
		}
	}
	emit()
	return out
}

// FusedFilter evaluates several filters with one stats pass and one
// predicate pass. Statuses and traces are reported per member.
type FusedFilter struct {
	op.Base
	members []*op.Filter
}

// NewFusedFilter fuses members, which must already be bound. The fused
// operator sits at the first member's position.
func NewFusedFilter(members []*op.Filter) *FusedFilter {
	names := make([]string, len(members))
	refs := make([]op.Ref, len(members))
	opts := members[0].Options()
	for i, m := range members {
		names[i] = m.Name()
		refs[i] = op.Ref{Name: m.Name(), Index: m.Index()}
		mo := m.Options()
		if mo.CPURequired > opts.CPURequired {
			opts.CPURequired = mo.CPURequired
		}
		if mo.MemRequiredGB > opts.MemRequiredGB {
			opts.MemRequiredGB = mo.MemRequiredGB
		}
		if mo.BatchSize < opts.BatchSize {
			opts.BatchSize = mo.BatchSize
		}
		if mo.NumProc > 0 && (opts.NumProc == 0 || mo.NumProc < opts.NumProc) {
			opts.NumProc = mo.NumProc
		}
	}
	opts.StatsExportPath = ""

	f := &FusedFilter{
		Base:    op.NewBase("fused_filter("+strings.Join(names, ",")+")", op.KindFilter, opts),
		members: members,
	}
	f.Bind(members[0].Index(), members[0].RunID())
	f.SetMembers(refs)
	return f
}

// Filters returns the fused members in plan order.
func (f *FusedFilter) Filters() []*op.Filter { return f.members }

// StatsKeys returns the union of the members' stats keys.
func (f *FusedFilter) StatsKeys() []string {
	var keys []string
	for _, m := range f.members {
		keys = append(keys, m.StatsKeys()...)
	}
	return keys
}

// Stateful implements op.Operator. Stateful filters are never fused.
func (f *FusedFilter) Stateful() bool { return false }

// Run implements op.Operator.
func (f *FusedFilter) Run(ctx context.Context, rc *op.RunContext, ds *dataset.Dataset) (*dataset.Dataset, error) {
	return f.Execute(ctx, rc, ds, false, func(ctx context.Context, inv op.Invocation, ds *dataset.Dataset) (*dataset.Dataset, op.TraceEvent, error) {
		mapOpts := dataset.MapOptions{Workers: inv.NumProc, BatchSize: f.Options().BatchSize}
		stats, err := op.ComputeStats(ctx, ds, mapOpts, inv.Guard, f.computeAll)
		if err != nil {
			return nil, op.TraceEvent{}, err
		}
		for _, m := range f.members {
			if err := op.ExportStats(m.Options().StatsExportPath, stats); err != nil {
				return nil, op.TraceEvent{}, err
			}
		}
		mask, err := stats.FilterMask(ctx, inv.NumProc, inv.Guard.Predicate(f.keepAll))
		if err != nil {
			return nil, op.TraceEvent{}, err
		}
		f.traceMembers(ctx, rc, stats, mask)
		return stats.Where(mask), op.TraceEvent{}, nil
	})
}

func (f *FusedFilter) computeAll(ctx context.Context, r dataset.Record) (dataset.Record, error) {
	var err error
	for _, m := range f.members {
		if r, err = m.Logic().ComputeStats(ctx, r); err != nil {
			return nil, err
		}
		if r == nil {
			return nil, nil
		}
	}
	return r, nil
}

func (f *FusedFilter) keepAll(r dataset.Record) (bool, error) {
	i, err := f.firstRejecter(r)
	return i < 0, err
}

// firstRejecter returns the index of the first member whose predicate
// rejects r, or -1 when every member keeps it.
func (f *FusedFilter) firstRejecter(r dataset.Record) (int, error) {
	for i, m := range f.members {
		ok, err := m.Logic().Keep(r)
		if err != nil {
			return i, err
		}
		if !ok {
			return i, nil
		}
	}
	return -1, nil
}

// traceMembers attributes each removed record to the first member that
// rejected it and traces each member separately.
func (f *FusedFilter) traceMembers(ctx context.Context, rc *op.RunContext, stats *dataset.Dataset, mask []bool) {
	removed := make([][]dataset.Record, len(f.members))
	want := 0
	for _, m := range f.members {
		if rc.Tracing(m.Name()) {
			want++
		}
	}
	if want == 0 {
		return
	}
	for i, keep := range mask {
		if keep {
			continue
		}
		r := stats.At(i)
		j, err := f.firstRejecter(r)
		if err != nil || j < 0 || len(removed[j]) >= rc.TraceNum {
			continue
		}
		removed[j] = append(removed[j], r)
	}
	for j, m := range f.members {
		rc.Trace(ctx, op.TraceEvent{
			Kind:    op.KindFilter,
			Ref:     op.Ref{Name: m.Name(), Index: m.Index()},
			Removed: removed[j],
		})
	}
}

// After returns the operators that still have work once every plan
// position up to lastIndex has completed. A fused filter straddling
// lastIndex is rebuilt from its pending members, so a checkpoint taken
// without fusion resumes correctly with it and the other way round.
func After(ops []op.Operator, lastIndex int) []op.Operator {
	var out []op.Operator
	for _, o := range ops {
		ff, ok := o.(*FusedFilter)
		if !ok {
			if o.Index() > lastIndex {
				out = append(out, o)
			}
			continue
		}
		var pending []*op.Filter
		for _, m := range ff.members {
			if m.Index() > lastIndex {
				pending = append(pending, m)
			}
		}
		switch {
		case len(pending) == len(ff.members):
			out = append(out, ff)
		case len(pending) == 1:
			out = append(out, pending[0])
		case len(pending) > 1:
			out = append(out, NewFusedFilter(pending))
		}
	}
	return out
}
