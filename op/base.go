package op

import (
	"context"
	"time"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/observability"
	"github.com/kbukum/dataflow/sizing"
)

// Operator is one executable step of a plan.
type Operator interface {
	Name() string
	Kind() Kind
	Index() int
	Options() Options
	// Bind places the operator at a plan position. Only the loader calls it.
	Bind(index int, runID string)
	// Stateful operators depend on seeing records in order.
	Stateful() bool
	Run(ctx context.Context, rc *RunContext, ds *dataset.Dataset) (*dataset.Dataset, error)
}

// Invocation is what a kind body receives from Execute.
type Invocation struct {
	NumProc  int
	Guard    Guard
	Counters *Counters
	Log      *logger.Logger
}

// Body is the kind-specific part of a run. It returns the new dataset and
// the samples to trace.
type Body func(ctx context.Context, inv Invocation, ds *dataset.Dataset) (*dataset.Dataset, TraceEvent, error)

// Base holds the identity and options shared by every operator.
type Base struct {
	name    string
	kind    Kind
	opts    Options
	index   int
	runID   string
	members []Ref
}

// NewBase returns a Base for an operator not yet placed in a plan.
func NewBase(name string, kind Kind, opts Options) Base {
	return Base{name: name, kind: kind, opts: opts, index: -1}
}

func (b *Base) Name() string     { return b.name }
func (b *Base) Kind() Kind       { return b.kind }
func (b *Base) Index() int       { return b.index }
func (b *Base) RunID() string    { return b.runID }
func (b *Base) Options() Options { return b.opts }
func (b *Base) Ref() Ref         { return Ref{Name: b.name, Index: b.index} }

// Bind implements Operator.
func (b *Base) Bind(index int, runID string) {
	b.index = index
	b.runID = runID
}

// SetMembers makes status updates go to refs instead of the operator's own
// position. Composite operators use it to report per member.
func (b *Base) SetMembers(refs []Ref) { b.members = refs }

// Members returns the positions status updates are reported under.
func (b *Base) Members() []Ref {
	if len(b.members) > 0 {
		return b.members
	}
	return []Ref{b.Ref()}
}

func (b *Base) setStatus(ctx context.Context, rc *RunContext, s Status) {
	for _, ref := range b.Members() {
		rc.SetStatus(ctx, ref, s)
	}
}

// Execute runs body inside the lifecycle every operator shares: announce,
// mark Processing, size the worker pool, run under a span, then trace and
// mark Success, or mark Error and fail with OPERATOR_FAILED.
func (b *Base) Execute(ctx context.Context, rc *RunContext, ds *dataset.Dataset, stateful bool, body Body) (out *dataset.Dataset, err error) {
	ref := b.Ref()
	log := rc.log().WithOperator(b.name, b.index)
	counters := &Counters{}
	start := time.Now()
	np := 0

	rc.Emit(ctx, ref, "info", "starting", logger.Fields(logger.FieldRecordsIn, ds.Len()))
	defer func() {
		snap := counters.Snapshot()
		fields := logger.CountFields(snap.In, snap.Out, snap.Dropped)
		fields[logger.FieldDuration] = time.Since(start).Milliseconds()
		fields[logger.FieldNumProc] = np
		rc.Emit(ctx, ref, "info", "ending", fields)
	}()

	b.setStatus(ctx, rc, StatusProcessing)

	fail := func(cause error) (*dataset.Dataset, error) {
		b.setStatus(ctx, rc, StatusError)
		rc.Emit(ctx, ref, "error", "operator failed", logger.Fields(logger.FieldError, cause.Error()))
		snap := counters.Snapshot()
		rc.addResult(Result{Ref: ref, Kind: b.kind, Status: StatusError, NumProc: np, Counters: snap, Duration: time.Since(start), Error: cause.Error()})
		rc.Metrics.RecordOperator(ctx, b.name, string(StatusError), snap.In, snap.Out, snap.Dropped, time.Since(start))
		if errors.HasCode(cause, errors.ErrCodeOperatorFailed) {
			return nil, cause
		}
		return nil, errors.OperatorFailed(b.name, b.index, cause)
	}

	acct := rc.Accountant
	if acct == nil {
		acct = sizing.Shared()
	}
	np, err = b.workers(ctx, acct, rc.MaxProc, stateful, log)
	if err != nil {
		return fail(err)
	}
	if r, ok := acct.(Reserver); ok {
		release := r.Reserve(b.opts.CPURequired*float64(np), b.opts.MemRequiredGB*float64(np))
		defer release()
	}

	spanCtx, span := observability.StartOperatorSpan(ctx, rc.RunID, b.name, b.index)
	observability.SetSpanAttribute(spanCtx, observability.AttrNumProc, np)
	observability.SetSpanAttribute(spanCtx, observability.AttrRecordsIn, ds.Len())
	log = log.WithContext(spanCtx)

	inv := Invocation{
		NumProc:  np,
		Guard:    Guard{Op: b.name, Log: log, Counters: counters},
		Counters: counters,
		Log:      log,
	}
	res, trace, err := b.runBody(spanCtx, inv, ds, body)
	if err != nil {
		observability.SetSpanError(spanCtx, err)
		span.End()
		return fail(err)
	}
	counters.setIO(ds.Len(), res.Len())
	observability.SetSpanAttribute(spanCtx, observability.AttrRecordsOut, res.Len())
	span.End()

	if trace.Ref.Name == "" {
		trace.Ref = ref
	}
	if trace.Kind == "" {
		trace.Kind = b.kind
	}
	rc.Trace(ctx, trace)
	b.setStatus(ctx, rc, StatusSuccess)

	snap := counters.Snapshot()
	rc.addResult(Result{Ref: ref, Kind: b.kind, Status: StatusSuccess, NumProc: np, Counters: snap, Duration: time.Since(start)})
	rc.Metrics.RecordOperator(ctx, b.name, string(StatusSuccess), snap.In, snap.Out, snap.Dropped, time.Since(start))
	return res, nil
}

// runBody converts a panic that escaped every guard into an error.
func (b *Base) runBody(ctx context.Context, inv Invocation, ds *dataset.Dataset, body Body) (out *dataset.Dataset, ev TraceEvent, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, panicError(p)
		}
	}()
	out, ev, err = body(ctx, inv, ds)
	if err == nil && out == nil {
		err = errors.Internal(nil).WithDetail("reason", "operator returned no dataset")
	}
	return out, ev, err
}

func (b *Base) workers(ctx context.Context, acct sizing.Accountant, maxProc int, stateful bool, log *logger.Logger) (int, error) {
	if stateful {
		log.Info("stateful operator runs on one worker", logger.Fields(logger.FieldNumProc, 1))
		return 1, nil
	}
	return sizing.RuntimeNP(ctx, acct, sizing.Requirements{
		Name:           b.name,
		Index:          b.index,
		NumProc:        b.opts.NumProc,
		MaxProc:        maxProc,
		CPURequired:    b.opts.CPURequired,
		MemRequiredGB:  b.opts.MemRequiredGB,
		UseAccelerator: b.opts.UseAccelerator(),
	}, log)
}
