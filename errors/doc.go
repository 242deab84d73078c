// Package errors provides the structured error type used across dataflow.
// Errors carry a machine-readable code, retryable detection, and a fault
// class that tells the executor whether a failure is contained to a record,
// fatal to an operator, or fatal to the whole run.
package errors
