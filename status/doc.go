// Package status provides op.StatusSink implementations: the run log,
// an in-memory table, Redis, and a fan-out over several sinks.
package status
