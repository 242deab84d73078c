package op

import (
	"context"
	"fmt"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/logger"
)

// RecordFunc is the per-record unit of operator work. It may mutate and
// return its argument, which is always a private copy.
type RecordFunc func(ctx context.Context, r dataset.Record) (dataset.Record, error)

// BatchFunc is the per-chunk unit of operator work for batched operators.
type BatchFunc func(ctx context.Context, b *dataset.Batch) (*dataset.Batch, error)

// PredicateFunc decides whether a record is kept.
type PredicateFunc func(r dataset.Record) (bool, error)

// Outcome is the result of running operator work on one record: either the
// record was kept (possibly edited) or it was dropped with an error.
type Outcome struct {
	record dataset.Record
	err    error
}

// Kept wraps a surviving record.
func Kept(r dataset.Record) Outcome { return Outcome{record: r} }

// Dropped wraps the fault that removed a record.
func Dropped(err error) Outcome { return Outcome{err: err} }

// IsKept reports whether the record survived.
func (o Outcome) IsKept() bool { return o.err == nil }

// Record returns the surviving record, or nil if it was dropped.
func (o Outcome) Record() dataset.Record { return o.record }

// Err returns the fault that dropped the record, or nil.
func (o Outcome) Err() error { return o.err }

// Guard contains record and batch faults so one bad input never fails the
// whole operator. Every contained fault is logged and counted as dropped.
type Guard struct {
	Op       string
	Log      *logger.Logger
	Counters *Counters
}

// Apply runs fn on one record. Errors and panics become Dropped.
func (g Guard) Apply(ctx context.Context, fn RecordFunc, r dataset.Record) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = g.drop(1, panicError(p), r)
		}
	}()
	res, err := fn(ctx, r)
	if err != nil {
		return g.drop(1, err, r)
	}
	if res == nil {
		return g.drop(1, fmt.Errorf("no record returned"), r)
	}
	return Kept(res)
}

// Single adapts a per-record function to columnar chunks. Each row is
// handled on its own, so a fault drops only that row; survivors are put
// back into the chunk's columnar shape in their original order.
func (g Guard) Single(ctx context.Context, fn RecordFunc) dataset.BatchFunc {
	return func(b *dataset.Batch) (*dataset.Batch, error) {
		out := dataset.NewBatch(b.Columns())
		for i := 0; i < b.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if o := g.Apply(ctx, fn, b.Row(i)); o.IsKept() {
				out.Append(o.Record())
			}
		}
		return out, nil
	}
}

// Batch adapts a batched function. A fault anywhere in the chunk, or an
// output whose columns have differing lengths, drops the whole chunk and
// yields an empty chunk with the input's columns.
func (g Guard) Batch(ctx context.Context, fn BatchFunc) dataset.BatchFunc {
	return func(b *dataset.Batch) (out *dataset.Batch, err error) {
		n := b.Len()
		cols := b.Columns()
		defer func() {
			if p := recover(); p != nil {
				g.drop(n, panicError(p), b)
				out, err = dataset.NewBatch(cols), nil
			}
		}()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, ferr := fn(ctx, b)
		switch {
		case ferr != nil:
		case res == nil:
			ferr = fmt.Errorf("no batch returned")
		case !res.IsAligned():
			ferr = fmt.Errorf("batch columns have differing lengths")
		default:
			return res, nil
		}
		g.drop(n, ferr, b)
		return dataset.NewBatch(cols), nil
	}
}

// Predicate adapts a fallible predicate. A fault rejects the record and is
// counted as dropped.
func (g Guard) Predicate(fn PredicateFunc) dataset.Predicate {
	return func(r dataset.Record) (keep bool) {
		defer func() {
			if p := recover(); p != nil {
				g.drop(1, panicError(p), r)
				keep = false
			}
		}()
		ok, err := fn(r)
		if err != nil {
			g.drop(1, err, r)
			return false
		}
		return ok
	}
}

// Logged renderings of dropped input are capped in rows and bytes.
const (
	maxSampleRows = 3
	maxSampleLen  = 1024
)

func (g Guard) drop(n int, cause error, sample any) Outcome {
	err := errors.RecordDropped(g.Op, cause)
	g.Counters.AddDropped(n)
	if g.Log != nil {
		g.Log.Error("records dropped", logger.Fields(
			logger.FieldOperator, g.Op,
			logger.FieldDropped, n,
			logger.FieldError, cause.Error(),
			logger.FieldSample, renderSample(sample),
		))
	}
	return Dropped(err)
}

// renderSample formats a record, or the rows of a batch, for the log.
func renderSample(v any) string {
	var s string
	switch x := v.(type) {
	case *dataset.Batch:
		if x == nil || !x.IsAligned() {
			return ""
		}
		rows := make([]dataset.Record, 0, maxSampleRows)
		for i := 0; i < x.Len() && i < maxSampleRows; i++ {
			rows = append(rows, x.Row(i))
		}
		s = fmt.Sprint(rows)
	default:
		s = fmt.Sprint(x)
	}
	if len(s) > maxSampleLen {
		s = s[:maxSampleLen] + "..."
	}
	return s
}

func panicError(v any) error {
	return fmt.Errorf("panic: %v", v)
}
