package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PhaseSpan tracks one executor phase: a span plus its wall time.
type PhaseSpan struct {
	Phase     string
	StartTime time.Time
	span      trace.Span
	metrics   *PipelineMetrics
}

// StartPhase starts a span for phase under the run span in ctx.
// If metrics is nil, metric recording is silently skipped.
func StartPhase(ctx context.Context, runID, phase string, metrics *PipelineMetrics) (context.Context, *PhaseSpan) {
	ctx, span := StartSpan(ctx, SpanPhase, trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.String(AttrPhase, phase),
	))
	return ctx, &PhaseSpan{Phase: phase, StartTime: time.Now(), span: span, metrics: metrics}
}

// End closes the span, records the phase duration and returns it.
func (p *PhaseSpan) End(ctx context.Context, err error) time.Duration {
	d := time.Since(p.StartTime)
	status := "ok"
	if err != nil {
		status = "error"
		p.span.RecordError(err)
		p.span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}
	p.span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, d.Milliseconds()),
	)
	p.span.End()
	p.metrics.RecordPhase(ctx, p.Phase, d)
	return d
}
