// Package executor drives a run: load the plan, ingest and format the
// source, restore from a checkpoint, apply every operator in order and
// export the result.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/dataflow/checkpoint"
	"github.com/kbukum/dataflow/compress"
	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/export"
	"github.com/kbukum/dataflow/format"
	"github.com/kbukum/dataflow/ingest"
	"github.com/kbukum/dataflow/loader"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/observability"
	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/sizing"
)

// Phase names used in reports, spans and errors.
const (
	PhaseLoad       = "load"
	PhaseIngest     = "ingest"
	PhaseFormat     = "format"
	PhaseRestore    = "restore"
	PhaseRun        = "run"
	PhaseCheckpoint = "checkpoint"
	PhaseExport     = "export"
)

// Deps are the collaborators a run uses. Registry, Ingester, Formatter and
// Exporter are required; the rest are optional.
type Deps struct {
	Registry    *op.Registry
	Ingester    ingest.Ingester
	Formatter   format.Formatter
	Exporter    export.Exporter
	Checkpoints checkpoint.Manager
	Tracer      op.Tracer
	Sink        op.StatusSink
	Accountant  sizing.Accountant
	Metrics     *observability.PipelineMetrics
	Log         *logger.Logger
}

// Failure is the single cause of a failed run.
type Failure struct {
	Phase    string           `json:"phase"`
	Operator string           `json:"operator,omitempty"`
	Index    int              `json:"pipeline_index"`
	Code     errors.ErrorCode `json:"code"`
	Message  string           `json:"message"`
}

// Report summarizes a finished, failed or stopped run.
type Report struct {
	RunID     string                   `json:"run_id"`
	State     State                    `json:"state"`
	Branch    string                   `json:"branch,omitempty"`
	Records   int                      `json:"records"`
	Resumed   bool                     `json:"resumed"`
	Phases    map[string]time.Duration `json:"phases"`
	Statuses  []op.StatusEntry         `json:"statuses"`
	Operators []op.Result              `json:"operators"`
	Failure   *Failure                 `json:"failure,omitempty"`
}

// Executor runs one plan. It is single-use: Run may be called once.
type Executor struct {
	cfg  Config
	deps Deps
	log  *logger.Logger

	state   atomic.Int32
	stopped atomic.Bool
	started atomic.Bool
}

// New validates deps and returns an executor in state Created. An empty
// RunID is replaced by a random one.
func New(cfg Config, deps Deps) (*Executor, error) {
	cfg.applyDefaults()
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	switch {
	case deps.Registry == nil:
		return nil, errors.InvalidConfig("registry", "is required")
	case deps.Ingester == nil:
		return nil, errors.InvalidConfig("ingester", "is required")
	case deps.Formatter == nil:
		return nil, errors.InvalidConfig("formatter", "is required")
	case deps.Exporter == nil:
		return nil, errors.InvalidConfig("exporter", "is required")
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Accountant == nil {
		deps.Accountant = sizing.Shared()
	}
	e := &Executor{cfg: cfg, deps: deps, log: deps.Log.WithComponent("executor").WithRun(cfg.RunID)}
	e.state.Store(int32(StateCreated))
	return e, nil
}

// RunID returns the id of the run.
func (e *Executor) RunID() string { return e.cfg.RunID }

// State returns the current lifecycle state.
func (e *Executor) State() State { return State(e.state.Load()) }

// Stop asks the run to end at the next operator boundary. The operator in
// flight finishes first.
func (e *Executor) Stop() {
	if e.stopped.CompareAndSwap(false, true) {
		e.log.Info("stop requested")
	}
}

func (e *Executor) setState(s State) {
	e.state.Store(int32(s))
	e.log.Debug("state changed", logger.Fields("state", s.String()))
}

// run carries the per-run bookkeeping Run threads through its phases.
type run struct {
	rc     *op.RunContext
	report *Report
}

func (r *run) timed(ctx context.Context, e *Executor, phase string, fn func(context.Context) error) error {
	pctx, ps := observability.StartPhase(ctx, e.cfg.RunID, phase, e.deps.Metrics)
	err := fn(pctx)
	d := ps.End(pctx, err)
	r.report.Phases[phase] += d
	e.log.Debug("phase done", logger.DurationFields(phase, d))
	return err
}

// Run executes the plan. The report is returned in every case; err is
// non-nil when the run failed or was stopped.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, errors.InvalidInput("executor", "run already started")
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanRun, trace.WithAttributes(
		attribute.String(observability.AttrRunID, e.cfg.RunID),
	))
	defer span.End()

	r := &run{
		rc:     e.runContext(),
		report: &Report{RunID: e.cfg.RunID, Phases: map[string]time.Duration{}},
	}
	start := time.Now()
	e.log.Info("run starting", logger.Fields("operators", len(e.cfg.Plan)))

	ds, err := e.execute(ctx, r)
	switch {
	case err == nil:
		e.setState(StateFinished)
		r.report.Records = ds.Len()
	case errors.HasCode(err, errors.ErrCodeStopped):
		e.setState(StateStopped)
	default:
		e.setState(StateFailed)
		observability.SetSpanError(ctx, err)
	}
	r.report.State = e.State()
	r.report.Statuses = r.rc.Statuses.Entries()
	r.report.Operators = r.rc.Results()
	e.deps.Metrics.RecordRun(ctx, r.report.State.String())

	fields := logger.Fields("state", r.report.State.String(), logger.FieldDuration, time.Since(start).Milliseconds())
	if err != nil {
		e.log.Warn("run ended", logger.MergeWithError(fields, err))
		return r.report, err
	}
	fields[logger.FieldRecordsOut] = r.report.Records
	fields["branch"] = r.report.Branch
	e.log.Info("run finished", fields)
	return r.report, nil
}

func (e *Executor) runContext() *op.RunContext {
	rc := op.NewRunContext(e.cfg.RunID, e.deps.Log)
	rc.Sink = e.deps.Sink
	rc.Metrics = e.deps.Metrics
	rc.Accountant = e.deps.Accountant
	rc.MaxProc = e.cfg.MaxProc
	rc.TraceNum = e.cfg.TraceNum
	rc.TraceOps = e.cfg.OpListToTrace
	if e.cfg.OpenTracer {
		rc.Tracer = e.deps.Tracer
	}
	return rc
}

func (e *Executor) execute(ctx context.Context, r *run) (*dataset.Dataset, error) {
	var ops []op.Operator
	err := r.timed(ctx, e, PhaseLoad, func(ctx context.Context) error {
		var err error
		ops, err = loader.Load(ctx, e.deps.Registry, e.cfg.Plan, loader.Options{
			Fusion: e.cfg.OpFusion,
			RunID:  e.cfg.RunID,
			Log:    e.deps.Log,
		})
		return err
	})
	if err != nil {
		return nil, e.fail(r, PhaseLoad, err)
	}
	for _, ref := range loader.Positions(ops) {
		r.rc.SetStatus(ctx, ref, op.StatusWaiting)
	}

	e.setState(StateIngesting)
	var source string
	err = r.timed(ctx, e, PhaseIngest, func(ctx context.Context) error {
		var err error
		source, err = e.deps.Ingester.Ingest(ctx)
		return err
	})
	if err != nil {
		return nil, e.fail(r, PhaseIngest, err)
	}

	e.setState(StateFormatting)
	var ds *dataset.Dataset
	err = r.timed(ctx, e, PhaseFormat, func(ctx context.Context) error {
		var err error
		ds, err = e.deps.Formatter.Load(ctx, source, e.cfg.NP)
		return err
	})
	if err != nil {
		return nil, e.fail(r, PhaseFormat, err)
	}
	e.log.Info("dataset loaded", logger.Fields(logger.FieldRecordsIn, ds.Len(), "source", source))

	if e.cfg.UseCheckpoint && e.deps.Checkpoints != nil && e.deps.Checkpoints.Available(e.cfg.Plan) {
		e.setState(StateRestoring)
		err = r.timed(ctx, e, PhaseRestore, func(ctx context.Context) error {
			restored, st, err := e.deps.Checkpoints.Load(ctx)
			if err != nil {
				return err
			}
			remaining := e.deps.Checkpoints.RemainingPlan(st, ops)
			e.markCompleted(ctx, r, ops, st.LastIndex)
			e.log.Info("resuming from checkpoint", logger.Fields(
				"last_index", st.LastIndex,
				"remaining", len(remaining),
				logger.FieldRecordsIn, restored.Len(),
			))
			ds, ops = restored, remaining
			r.report.Resumed = true
			return nil
		})
		if err != nil {
			return nil, e.fail(r, PhaseRestore, err)
		}
	}

	e.setState(StateRunning)
	for _, o := range ops {
		if e.stopped.Load() || ctx.Err() != nil {
			e.log.Info("run stopped at operator boundary", logger.Fields(
				logger.FieldOperator, o.Name(),
				logger.FieldPipelineIndex, o.Index(),
			))
			return nil, errors.Stopped(o.Index())
		}
		var out *dataset.Dataset
		err = r.timed(ctx, e, PhaseRun, func(ctx context.Context) error {
			var err error
			out, err = o.Run(ctx, r.rc, ds)
			return err
		})
		if err != nil {
			return nil, e.failOperator(r, o, err)
		}
		ds = out

		if err := e.persist(ctx, r, o, ds); err != nil {
			return nil, e.fail(r, PhaseCheckpoint, err)
		}
	}

	e.setState(StateExporting)
	err = r.timed(ctx, e, PhaseExport, func(ctx context.Context) error {
		branch, err := e.deps.Exporter.Export(ctx, ds)
		r.report.Branch = branch
		return err
	})
	if err != nil {
		return nil, e.fail(r, PhaseExport, err)
	}
	e.compressCache(ctx)
	return ds, nil
}

// markCompleted sets Success on every position a checkpoint already covers.
// Positions are member positions, so a fused filter straddling lastIndex
// is only partly marked.
func (e *Executor) markCompleted(ctx context.Context, r *run, all []op.Operator, lastIndex int) {
	for _, ref := range loader.Positions(all) {
		if ref.Index <= lastIndex {
			r.rc.SetStatus(ctx, ref, op.StatusSuccess)
		}
	}
}

// persist saves the checkpoint and cache snapshot after o completes.
func (e *Executor) persist(ctx context.Context, r *run, o op.Operator, ds *dataset.Dataset) error {
	refs := loader.Positions([]op.Operator{o})
	last := refs[len(refs)-1].Index
	return r.timed(ctx, e, PhaseCheckpoint, func(ctx context.Context) error {
		if e.cfg.UseCheckpoint && e.deps.Checkpoints != nil {
			if err := e.deps.Checkpoints.Save(ctx, ds, e.cfg.Plan, last); err != nil {
				return err
			}
		}
		if e.cfg.UseCache {
			return e.writeCache(o, ds)
		}
		return nil
	})
}

func (e *Executor) writeCache(o op.Operator, ds *dataset.Dataset) error {
	dir := e.cfg.cacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-%s.jsonl", o.Index(), o.Name()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := dataset.WriteJSONL(f, ds); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: %w", err)
	}
	return f.Close()
}

// compressCache runs after export; a failure only costs disk space.
func (e *Executor) compressCache(ctx context.Context) {
	if !e.cfg.UseCache || e.cfg.CacheCompress == compress.None {
		return
	}
	files, err := compress.CompressDir(ctx, e.cfg.CacheCompress, e.cfg.cacheDir())
	if err != nil {
		e.log.Warn("cache compression failed", logger.Fields(logger.FieldError, err.Error()))
		return
	}
	e.log.Info("cache compressed", logger.Fields("codec", string(e.cfg.CacheCompress), "files", len(files)))
}

func (e *Executor) fail(r *run, phase string, err error) error {
	appErr := errors.PhaseFailed(phase, err)
	r.report.Failure = &Failure{Phase: phase, Index: -1, Code: appErr.Code, Message: appErr.Error()}
	e.log.Error("phase failed", logger.MergeWithError(logger.Fields("phase", phase), err))
	return appErr
}

func (e *Executor) failOperator(r *run, o op.Operator, err error) error {
	code := errors.ErrCodeOperatorFailed
	if appErr, ok := errors.AsAppError(err); ok {
		code = appErr.Code
	}
	r.report.Failure = &Failure{
		Phase:    PhaseRun,
		Operator: o.Name(),
		Index:    o.Index(),
		Code:     code,
		Message:  err.Error(),
	}
	return err
}
