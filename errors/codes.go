package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Generic errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeExternalService indicates an error from an external service.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// Pipeline errors
const (
	// ErrCodeInvalidConfig indicates a recipe or operator argument is invalid.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeOperatorUnavailable indicates an operator cannot be loaded at all.
	ErrCodeOperatorUnavailable ErrorCode = "OPERATOR_UNAVAILABLE"
	// ErrCodeOperatorFailed indicates an operator's run failed as a whole.
	ErrCodeOperatorFailed ErrorCode = "OPERATOR_FAILED"
	// ErrCodeRecordDropped indicates a single record was dropped by a fault wrapper.
	ErrCodeRecordDropped ErrorCode = "RECORD_DROPPED"
	// ErrCodeIngestFailed indicates the source could not be acquired.
	ErrCodeIngestFailed ErrorCode = "INGEST_FAILED"
	// ErrCodeFormatFailed indicates the source could not be normalized into a dataset.
	ErrCodeFormatFailed ErrorCode = "FORMAT_FAILED"
	// ErrCodeExportFailed indicates the result could not be written.
	ErrCodeExportFailed ErrorCode = "EXPORT_FAILED"
	// ErrCodeCheckpointFailed indicates a checkpoint could not be read or written.
	ErrCodeCheckpointFailed ErrorCode = "CHECKPOINT_FAILED"
	// ErrCodeResourceAccounting indicates the resource accountant could not be consulted.
	ErrCodeResourceAccounting ErrorCode = "RESOURCE_ACCOUNTING_FAILED"
	// ErrCodeStopped indicates the run was stopped on request.
	ErrCodeStopped ErrorCode = "RUN_STOPPED"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:            true,
	ErrCodeExternalService:    true,
	ErrCodeIngestFailed:       true,
	ErrCodeResourceAccounting: true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// Fault is the failure domain an error belongs to.
type Fault string

const (
	// FaultRecord is contained: the record is dropped and the run continues.
	FaultRecord Fault = "record"
	// FaultOperator fails the operator and with it the run.
	FaultOperator Fault = "operator"
	// FaultUnavailable fails the run at load time, before any data is touched.
	FaultUnavailable Fault = "unavailable"
	// FaultInfrastructure fails the run at the phase where I/O broke.
	FaultInfrastructure Fault = "infrastructure"
)

var faultByCode = map[ErrorCode]Fault{
	ErrCodeRecordDropped:       FaultRecord,
	ErrCodeOperatorFailed:      FaultOperator,
	ErrCodeInvalidConfig:       FaultOperator,
	ErrCodeOperatorUnavailable: FaultUnavailable,
	ErrCodeIngestFailed:        FaultInfrastructure,
	ErrCodeFormatFailed:        FaultInfrastructure,
	ErrCodeExportFailed:        FaultInfrastructure,
	ErrCodeCheckpointFailed:    FaultInfrastructure,
	ErrCodeResourceAccounting:  FaultInfrastructure,
	ErrCodeExternalService:     FaultInfrastructure,
	ErrCodeTimeout:             FaultInfrastructure,
}

// FaultClass reports the failure domain of err. Errors that are not
// AppErrors, or carry an unmapped code, are treated as operator faults.
func FaultClass(err error) Fault {
	if appErr, ok := AsAppError(err); ok {
		if f, ok := faultByCode[appErr.Code]; ok {
			return f
		}
	}
	return FaultOperator
}
