// Package logger provides structured logging for dataflow runs using zerolog.
//
// A run derives its loggers from one root: WithRun tags every line with the
// run id, and WithOperator adds the operator name and pipeline index so a
// single run can be followed through every phase.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("dataflow").WithRun(runID)
//	log.WithOperator("range_filter", 2).Info("starting filter", logger.Fields("records_in", 1200))
package logger
