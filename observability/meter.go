package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/dataflow/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// Enabled turns on metric export.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ServiceName is the name of the service.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	// ServiceVersion is the version of the service.
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	// Environment is the deployment environment (dev, staging, prod).
	Environment string `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Insecure allows insecure connections (for development).
	Insecure bool `yaml:"insecure" mapstructure:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// ApplyDefaults fills unset fields.
func (c *MeterConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0.0"
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// Validate validates the meter configuration.
func (c *MeterConfig) Validate() error {
	if c.Enabled && c.Interval < time.Second {
		return fmt.Errorf("metrics.interval must be at least 1s (got: %s)", c.Interval)
	}
	return nil
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// PipelineMetrics holds the instruments recorded during a run.
// A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	recordsIn        metric.Int64Counter
	recordsOut       metric.Int64Counter
	recordsDropped   metric.Int64Counter
	operatorDuration metric.Float64Histogram
	phaseDuration    metric.Float64Histogram
	runTotal         metric.Int64Counter
}

// NewPipelineMetrics creates metric instruments on the given meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	recordsIn, err := meter.Int64Counter("dataflow.records.in",
		metric.WithDescription("Records handed to operators"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dataflow.records.in counter: %w", err)
	}

	recordsOut, err := meter.Int64Counter("dataflow.records.out",
		metric.WithDescription("Records returned by operators"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dataflow.records.out counter: %w", err)
	}

	recordsDropped, err := meter.Int64Counter("dataflow.records.dropped",
		metric.WithDescription("Records dropped by fault containment"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dataflow.records.dropped counter: %w", err)
	}

	operatorDuration, err := meter.Float64Histogram("dataflow.operator.duration",
		metric.WithDescription("Duration of operator runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dataflow.operator.duration histogram: %w", err)
	}

	phaseDuration, err := meter.Float64Histogram("dataflow.phase.duration",
		metric.WithDescription("Duration of executor phases in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dataflow.phase.duration histogram: %w", err)
	}

	runTotal, err := meter.Int64Counter("dataflow.run.total",
		metric.WithDescription("Runs by terminal state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dataflow.run.total counter: %w", err)
	}

	return &PipelineMetrics{
		recordsIn:        recordsIn,
		recordsOut:       recordsOut,
		recordsDropped:   recordsDropped,
		operatorDuration: operatorDuration,
		phaseDuration:    phaseDuration,
		runTotal:         runTotal,
	}, nil
}

// RecordOperator records one operator invocation.
func (m *PipelineMetrics) RecordOperator(ctx context.Context, name, status string, in, out, dropped int64, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operator", name))
	m.recordsIn.Add(ctx, in, attrs)
	m.recordsOut.Add(ctx, out, attrs)
	if dropped > 0 {
		m.recordsDropped.Add(ctx, dropped, attrs)
	}
	m.operatorDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operator", name),
		attribute.String("status", status),
	))
}

// RecordPhase records the duration of an executor phase.
func (m *PipelineMetrics) RecordPhase(ctx context.Context, phase string, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("phase", phase),
	))
}

// RecordRun counts a run that reached a terminal state.
func (m *PipelineMetrics) RecordRun(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.runTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}
