package status

import (
	"context"
	"errors"
	"sync"

	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/resilience"
)

// LogSink writes status transitions to the structured log. Events are
// already logged by the run context, so AppendLog does nothing.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink returns a sink logging through log.
func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogSink{log: log.WithComponent("status")}
}

// SetStatus implements op.StatusSink.
func (s *LogSink) SetStatus(_ context.Context, runID string, ref op.Ref, st op.Status) error {
	s.log.Info("operator status", logger.Fields(
		logger.FieldRunID, runID,
		logger.FieldOperator, ref.Name,
		logger.FieldPipelineIndex, ref.Index,
		logger.FieldStatus, string(st),
	))
	return nil
}

// AppendLog implements op.StatusSink.
func (s *LogSink) AppendLog(context.Context, string, op.Event) error { return nil }

// MemorySink keeps statuses and events in memory, keyed by run.
type MemorySink struct {
	mu       sync.RWMutex
	statuses map[string]map[string]op.Status
	logs     map[string][]op.Event
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{statuses: map[string]map[string]op.Status{}, logs: map[string][]op.Event{}}
}

// SetStatus implements op.StatusSink.
func (s *MemorySink) SetStatus(_ context.Context, runID string, ref op.Ref, st op.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.statuses[runID]
	if m == nil {
		m = map[string]op.Status{}
		s.statuses[runID] = m
	}
	m[ref.Key()] = st
	return nil
}

// AppendLog implements op.StatusSink.
func (s *MemorySink) AppendLog(_ context.Context, runID string, ev op.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[runID] = append(s.logs[runID], ev)
	return nil
}

// Statuses returns a copy of the status table of runID, keyed by
// "<index>:<name>".
func (s *MemorySink) Statuses(runID string) map[string]op.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]op.Status, len(s.statuses[runID]))
	for k, v := range s.statuses[runID] {
		out[k] = v
	}
	return out
}

// Logs returns the events of runID in arrival order.
func (s *MemorySink) Logs(runID string) []op.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]op.Event(nil), s.logs[runID]...)
}

// Multi forwards to every sink and joins their errors.
type Multi []op.StatusSink

// SetStatus implements op.StatusSink.
func (m Multi) SetStatus(ctx context.Context, runID string, ref op.Ref, st op.Status) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.SetStatus(ctx, runID, ref, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AppendLog implements op.StatusSink.
func (m Multi) AppendLog(ctx context.Context, runID string, ev op.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.AppendLog(ctx, runID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Breaker stops forwarding to a remote sink after repeated failures and
// retries it after the cooldown. Updates dropped while open are not
// replayed.
type Breaker struct {
	Sink op.StatusSink
	cb   *resilience.Breaker
}

// NewBreaker wraps sink. State changes are logged on log.
func NewBreaker(sink op.StatusSink, cfg resilience.BreakerConfig, log *logger.Logger) *Breaker {
	if log == nil {
		log = logger.NewNop()
	}
	cfg.OnStateChange = func(name string, from, to resilience.BreakerState) {
		log.Warn("status sink breaker changed state", logger.Fields("sink", name, "from", from.String(), "to", to.String()))
	}
	return &Breaker{Sink: sink, cb: resilience.NewBreaker(cfg)}
}

// SetStatus implements op.StatusSink.
func (b *Breaker) SetStatus(ctx context.Context, runID string, ref op.Ref, st op.Status) error {
	return skipOpen(b.cb.Do(func() error { return b.Sink.SetStatus(ctx, runID, ref, st) }))
}

// AppendLog implements op.StatusSink.
func (b *Breaker) AppendLog(ctx context.Context, runID string, ev op.Event) error {
	return skipOpen(b.cb.Do(func() error { return b.Sink.AppendLog(ctx, runID, ev) }))
}

// State returns the breaker state.
func (b *Breaker) State() resilience.BreakerState { return b.cb.State() }

func skipOpen(err error) error {
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return nil
	}
	return err
}
