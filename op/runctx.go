package op

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/observability"
	"github.com/kbukum/dataflow/sizing"
)

// Event is one run log entry forwarded to the status sink.
type Event struct {
	Time     time.Time      `json:"time"`
	RunID    string         `json:"run_id"`
	Operator string         `json:"operator,omitempty"`
	Index    int            `json:"pipeline_index"`
	Level    string         `json:"level"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// StatusSink receives status transitions and run log events. Sink failures
// never affect a run.
type StatusSink interface {
	SetStatus(ctx context.Context, runID string, ref Ref, s Status) error
	AppendLog(ctx context.Context, runID string, ev Event) error
}

// Change is a record before and after a mapper edited it.
type Change struct {
	Before dataset.Record `json:"before"`
	After  dataset.Record `json:"after"`
}

// DupPair is a duplicate and the record it duplicates.
type DupPair struct {
	Kept      dataset.Record `json:"kept"`
	Duplicate dataset.Record `json:"duplicate"`
}

// TraceEvent carries the per-operator samples the tracer records.
type TraceEvent struct {
	RunID      string
	Kind       Kind
	Ref        Ref
	Changed    []Change
	Removed    []dataset.Record
	Duplicates []DupPair
}

// Empty reports whether the event carries no samples.
func (e TraceEvent) Empty() bool {
	return len(e.Changed) == 0 && len(e.Removed) == 0 && len(e.Duplicates) == 0
}

// Tracer records before/after samples for operators that change data.
type Tracer interface {
	Trace(ctx context.Context, ev TraceEvent) error
}

// Reserver is implemented by accountants that track live reservations.
type Reserver interface {
	Reserve(cpu, memGB float64) (release func())
}

// Result summarizes one operator invocation.
type Result struct {
	Ref
	Kind     Kind            `json:"kind"`
	Status   Status          `json:"status"`
	NumProc  int             `json:"num_proc"`
	Counters CounterSnapshot `json:"counters"`
	Duration time.Duration   `json:"duration"`
	Error    string          `json:"error,omitempty"`
}

// RunContext carries everything an operator needs from the run that
// executes it. It is passed explicitly; operators hold no run state.
type RunContext struct {
	RunID      string
	Log        *logger.Logger
	Sink       StatusSink
	Tracer     Tracer
	Metrics    *observability.PipelineMetrics
	Accountant sizing.Accountant
	// MaxProc caps derived worker counts; zero means no cap.
	MaxProc int
	// TraceNum bounds the samples per trace event.
	TraceNum int
	// TraceOps limits tracing to the named operators; empty traces all.
	TraceOps []string
	Statuses *StatusTable

	mu      sync.Mutex
	results []Result
}

// NewRunContext returns a RunContext with a fresh status table.
func NewRunContext(runID string, log *logger.Logger) *RunContext {
	if log == nil {
		log = logger.NewNop()
	}
	return &RunContext{RunID: runID, Log: log.WithRun(runID), Statuses: NewStatusTable(), TraceNum: 3}
}

func (rc *RunContext) log() *logger.Logger {
	if rc.Log == nil {
		return logger.NewNop()
	}
	return rc.Log
}

// SetStatus records a transition in the status table and forwards it to the
// sink. It never fails.
func (rc *RunContext) SetStatus(ctx context.Context, ref Ref, s Status) {
	if rc.Statuses == nil {
		rc.Statuses = NewStatusTable()
	}
	if !rc.Statuses.Set(ref, s) {
		return
	}
	if rc.Sink == nil {
		return
	}
	if err := rc.Sink.SetStatus(ctx, rc.RunID, ref, s); err != nil {
		rc.log().Warn("status sink update failed", logger.Fields(
			logger.FieldOperator, ref.Name,
			logger.FieldPipelineIndex, ref.Index,
			logger.FieldStatus, string(s),
			logger.FieldError, err.Error(),
		))
	}
}

// Emit logs msg and appends it to the sink's run log.
func (rc *RunContext) Emit(ctx context.Context, ref Ref, level, msg string, fields map[string]any) {
	l := rc.log().WithContext(ctx).WithOperator(ref.Name, ref.Index)
	switch level {
	case "error":
		l.Error(msg, fields)
	case "warn":
		l.Warn(msg, fields)
	default:
		l.Info(msg, fields)
	}
	if rc.Sink == nil {
		return
	}
	ev := Event{Time: time.Now().UTC(), RunID: rc.RunID, Operator: ref.Name, Index: ref.Index, Level: level, Message: msg, Fields: fields}
	if err := rc.Sink.AppendLog(ctx, rc.RunID, ev); err != nil {
		l.Warn("status sink log failed", logger.Fields(logger.FieldError, err.Error()))
	}
}

// Tracing reports whether the named operator is traced.
func (rc *RunContext) Tracing(name string) bool {
	if rc.Tracer == nil || rc.TraceNum <= 0 {
		return false
	}
	if len(rc.TraceOps) == 0 {
		return true
	}
	for _, n := range rc.TraceOps {
		if n == name {
			return true
		}
	}
	return false
}

// Trace hands ev to the tracer. Tracer errors and panics are logged and
// swallowed.
func (rc *RunContext) Trace(ctx context.Context, ev TraceEvent) {
	if !rc.Tracing(ev.Ref.Name) || ev.Empty() {
		return
	}
	ev.RunID = rc.RunID
	defer func() {
		if p := recover(); p != nil {
			rc.log().Warn("tracer panicked", logger.Fields(logger.FieldOperator, ev.Ref.Name, logger.FieldError, fmt.Sprint(p)))
		}
	}()
	if err := rc.Tracer.Trace(ctx, ev); err != nil {
		rc.log().Warn("trace failed", logger.Fields(logger.FieldOperator, ev.Ref.Name, logger.FieldError, err.Error()))
	}
}

func (rc *RunContext) addResult(r Result) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.results = append(rc.results, r)
}

// Results returns the summaries of every invocation so far, in run order.
func (rc *RunContext) Results() []Result {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]Result(nil), rc.results...)
}
