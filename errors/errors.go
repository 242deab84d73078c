package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource),
		Details: details,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	}
}

// InvalidConfig creates a new AppError for a bad recipe or operator argument.
func InvalidConfig(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid config: %s", reason),
		Details: details,
	}
}

// Internal creates a new AppError for an unexpected error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		Cause: cause,
	}
}

// ExternalServiceError creates a new AppError for an error from an external service.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("%s service error", service),
		Retryable: true,
		Details:   map[string]any{"service": service}, Cause: cause,
	}
}

// OperatorUnavailable reports an operator that cannot be loaded at all.
func OperatorUnavailable(name, reason string) *AppError {
	msg := fmt.Sprintf("operator %q is not available", name)
	if reason != "" {
		msg += ": " + reason
	}
	return &AppError{
		Code: ErrCodeOperatorUnavailable, Message: msg,
		Details: map[string]any{"operator": name},
	}
}

// OperatorFailed reports an operator whose run failed as a whole.
func OperatorFailed(name string, index int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeOperatorFailed, Message: fmt.Sprintf("operator %s[%d] failed", name, index),
		Details: map[string]any{"operator": name, "pipeline_index": index},
		Cause:   cause,
	}
}

// RecordDropped reports a record that was dropped by a fault wrapper.
func RecordDropped(operator string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeRecordDropped, Message: fmt.Sprintf("record dropped by %s", operator),
		Details: map[string]any{"operator": operator},
		Cause:   cause,
	}
}

var phaseCodes = map[string]ErrorCode{
	"ingest":     ErrCodeIngestFailed,
	"format":     ErrCodeFormatFailed,
	"export":     ErrCodeExportFailed,
	"checkpoint": ErrCodeCheckpointFailed,
	"restore":    ErrCodeCheckpointFailed,
}

// PhaseFailed wraps an infrastructure failure in the named executor phase.
// An AppError cause keeps its own code.
func PhaseFailed(phase string, cause error) *AppError {
	if appErr, ok := AsAppError(cause); ok {
		return appErr.WithDetail("phase", phase)
	}
	code, ok := phaseCodes[phase]
	if !ok {
		code = ErrCodeInternal
	}
	e := New(code, fmt.Sprintf("%s phase failed", phase)).WithCause(cause)
	return e.WithDetail("phase", phase)
}

// ResourceAccounting reports that the resource accountant could not be consulted.
func ResourceAccounting(cause error) *AppError {
	return New(ErrCodeResourceAccounting, "resource accountant unavailable").WithCause(cause)
}

// Stopped reports a run that was stopped before the operator at index.
func Stopped(index int) *AppError {
	return &AppError{
		Code: ErrCodeStopped, Message: fmt.Sprintf("run stopped before operator %d", index),
		Details: map[string]any{"pipeline_index": index},
	}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err, or any AppError in its cause chain, carries
// the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		appErr, ok := AsAppError(err)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}
