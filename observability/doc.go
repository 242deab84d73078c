// Package observability provides OpenTelemetry tracing and metrics for
// pipeline runs.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("dataflow"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartOperatorSpan(ctx, runID, "range_filter", 2)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewPipelineMetrics(observability.Meter("dataflow"))
//	metrics.RecordOperator(ctx, "range_filter", "success", 100, 80, 0, elapsed)
package observability
