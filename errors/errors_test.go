package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeIngestFailed, "download failed")
	if !err.Retryable {
		t.Error("INGEST_FAILED should be retryable")
	}
	err = New(ErrCodeOperatorFailed, "boom")
	if err.Retryable {
		t.Error("OPERATOR_FAILED should not be retryable")
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("checkpoint", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
	if err.Details["resource"] != "checkpoint" {
		t.Errorf("expected resource=checkpoint, got %v", err.Details["resource"])
	}
}

func TestAppError_OperatorUnavailable(t *testing.T) {
	err := OperatorUnavailable("magic_mapper", "")
	if err.Code != ErrCodeOperatorUnavailable {
		t.Fatalf("expected OPERATOR_UNAVAILABLE, got %s", err.Code)
	}
	if !strings.Contains(err.Error(), "magic_mapper") {
		t.Fatalf("expected diagnostic to name the operator, got %q", err.Error())
	}
	if FaultClass(err) != FaultUnavailable {
		t.Fatalf("expected unavailable fault, got %s", FaultClass(err))
	}
}

func TestAppError_OperatorFailed_Unwrap(t *testing.T) {
	cause := fmt.Errorf("missing field")
	err := OperatorFailed("range_filter", 2, cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
	if err.Details["pipeline_index"] != 2 {
		t.Fatalf("expected pipeline_index=2, got %v", err.Details["pipeline_index"])
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := NotFound("item", "1").WithDetails(map[string]any{"extra": "info"})
	if err.Details["extra"] != "info" {
		t.Errorf("expected extra=info in details")
	}
	if err.Details["resource"] != "item" {
		t.Error("expected original details to be preserved")
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{}
	err.WithDetail("key", "value")
	if err.Details["key"] != "value" {
		t.Errorf("expected key=value, got %v", err.Details["key"])
	}
}

func TestPhaseFailed(t *testing.T) {
	tests := []struct {
		phase string
		code  ErrorCode
	}{
		{"ingest", ErrCodeIngestFailed},
		{"format", ErrCodeFormatFailed},
		{"export", ErrCodeExportFailed},
		{"restore", ErrCodeCheckpointFailed},
		{"unknown", ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			err := PhaseFailed(tt.phase, fmt.Errorf("io"))
			if err.Code != tt.code {
				t.Fatalf("expected %s, got %s", tt.code, err.Code)
			}
			if err.Details["phase"] != tt.phase {
				t.Fatalf("expected phase=%s, got %v", tt.phase, err.Details["phase"])
			}
		})
	}
}

func TestPhaseFailed_KeepsAppErrorCode(t *testing.T) {
	inner := ExternalServiceError("hub", nil)
	err := PhaseFailed("ingest", inner)
	if err.Code != ErrCodeExternalService {
		t.Fatalf("expected inner code to be kept, got %s", err.Code)
	}
}

func TestFaultClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Fault
	}{
		{"record", RecordDropped("m", nil), FaultRecord},
		{"operator", OperatorFailed("m", 0, nil), FaultOperator},
		{"config", InvalidConfig("min", "bad"), FaultOperator},
		{"export", PhaseFailed("export", fmt.Errorf("disk")), FaultInfrastructure},
		{"accounting", ResourceAccounting(nil), FaultInfrastructure},
		{"plain", fmt.Errorf("plain"), FaultOperator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FaultClass(tt.err); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Stopped(3))
	if !HasCode(err, ErrCodeStopped) {
		t.Fatal("expected wrapped Stopped error to match")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeStopped) {
		t.Fatal("plain error must not match")
	}
}

func TestHasCode_CauseChain(t *testing.T) {
	err := OperatorFailed("op", 1, ResourceAccounting(fmt.Errorf("down")))
	if !HasCode(err, ErrCodeOperatorFailed) || !HasCode(err, ErrCodeResourceAccounting) {
		t.Fatal("expected both outer and cause codes to match")
	}
	if HasCode(err, ErrCodeStopped) {
		t.Fatal("unexpected match")
	}
}
