package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
}

func TestTracerConfigValidate(t *testing.T) {
	cfg := TracerConfig{Enabled: true, SampleRate: 2}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sample rate above 1")
	}
	cfg = TracerConfig{}
	cfg.ApplyDefaults()
	if cfg.SampleRate != 1.0 || cfg.Endpoint == "" {
		t.Fatalf("expected defaults applied, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMeterConfigValidate(t *testing.T) {
	cfg := MeterConfig{Enabled: true, Interval: time.Millisecond}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sub-second interval")
	}
	cfg = MeterConfig{Enabled: true}
	cfg.ApplyDefaults()
	if cfg.Interval != 15*time.Second {
		t.Fatalf("expected 15s interval, got %v", cfg.Interval)
	}
}

func TestPipelineMetrics_Noop(t *testing.T) {
	metrics, err := NewPipelineMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}
	ctx := context.Background()
	metrics.RecordOperator(ctx, "range_filter", "success", 10, 8, 0, time.Millisecond)
	metrics.RecordPhase(ctx, "ingest", time.Millisecond)
	metrics.RecordRun(ctx, "finished")
}

func TestPipelineMetrics_NilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.RecordOperator(context.Background(), "x", "success", 1, 1, 0, 0)
	m.RecordPhase(context.Background(), "x", 0)
	m.RecordRun(context.Background(), "failed")
}

func TestPipelineMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := NewPipelineMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	metrics.RecordOperator(ctx, "trim", "success", 5, 4, 1, time.Millisecond)
	metrics.RecordOperator(ctx, "trim", "success", 3, 3, 0, time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	if sums["dataflow.records.in"] != 8 || sums["dataflow.records.out"] != 7 || sums["dataflow.records.dropped"] != 1 {
		t.Fatalf("unexpected sums %v", sums)
	}
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestStartOperatorSpan(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartOperatorSpan(context.Background(), "run-1", "range_filter", 3)
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != SpanOperator {
		t.Fatalf("expected span %q, got %q", SpanOperator, ended[0].Name())
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if string(kv.Key) == AttrPipelineIndex && kv.Value.AsInt64() == 3 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected pipeline index attribute")
	}
}

func TestPhaseSpan_End(t *testing.T) {
	rec := withRecorder(t)

	ctx, phase := StartPhase(context.Background(), "run-1", "export", nil)
	phase.StartTime = time.Now().Add(-20 * time.Millisecond)
	d := phase.End(ctx, fmt.Errorf("disk full"))
	if d < 20*time.Millisecond {
		t.Fatalf("expected duration of at least 20ms, got %v", d)
	}
	ended := rec.Ended()
	if len(ended) != 1 || len(ended[0].Events()) == 0 {
		t.Fatalf("expected one span with a recorded error, got %d spans", len(ended))
	}
}

func TestSetSpanError(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "test-error")
	SetSpanError(ctx, fmt.Errorf("test error"))
	span.End()

	if got := rec.Ended()[0].Status().Code; got != codes.Error {
		t.Fatalf("expected error status, got %v", got)
	}
}

func TestSetSpanAttribute(t *testing.T) {
	withRecorder(t)

	ctx, span := StartSpan(context.Background(), "test-attrs")
	defer span.End()

	SetSpanAttribute(ctx, "string-key", "value")
	SetSpanAttribute(ctx, "int-key", 42)
	SetSpanAttribute(ctx, "int64-key", int64(100))
	SetSpanAttribute(ctx, "float-key", 3.14)
	SetSpanAttribute(ctx, "bool-key", true)
	SetSpanAttribute(ctx, "string-slice-key", []string{"a", "b"})
	SetSpanAttribute(ctx, "unsupported-key", struct{}{})
}

func TestNoSpanHelpers(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, "key", "value")
	SetSpanError(ctx, fmt.Errorf("no span error"))
}
