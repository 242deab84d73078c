package logger

import (
	"time"
)

// Standard field key constants for structured logging.
const (
	FieldComponent     = "component"
	FieldTraceID       = "trace_id"
	FieldSpanID        = "span_id"
	FieldRunID         = "run_id"
	FieldOperator      = "operator"
	FieldPipelineIndex = "pipeline_index"
	FieldPhase         = "phase"
	FieldStatus        = "status"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
	FieldNumProc       = "num_proc"
	FieldRecordsIn     = "records_in"
	FieldRecordsOut    = "records_out"
	FieldDropped       = "dropped"
	FieldSample        = "sample"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	logger.Info("done", logger.Fields("phase", "export", "records_out", 42))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// DurationFields creates fields for a timed phase.
func DurationFields(phase string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldPhase:    phase,
		FieldDuration: d.Milliseconds(),
	}
}

// CountFields creates fields describing how many records went in and out of a step.
func CountFields(in, out, dropped int64) map[string]interface{} {
	return map[string]interface{}{
		FieldRecordsIn:  in,
		FieldRecordsOut: out,
		FieldDropped:    dropped,
	}
}

// MergeWithError adds an error field to an existing map.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldError] = err.Error()
	return fields
}
