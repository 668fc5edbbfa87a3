package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", http.StatusNotFound)
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("execution", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := LinkError("a.out->b.in", "unknown node b")
	if !strings.HasPrefix(err.Error(), "LINK_ERROR: ") {
		t.Errorf("unexpected error string %q", err.Error())
	}
	wrapped := Internal(fmt.Errorf("boom"))
	if !strings.Contains(wrapped.Error(), "cause: boom") {
		t.Errorf("expected cause in %q", wrapped.Error())
	}
}

func TestHasCode(t *testing.T) {
	base := UnsatisfiedInput([][2]string{{"node2", "input"}})
	wrapped := fmt.Errorf("compile: %w", base)
	chained := Internal(base)

	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"direct", base, ErrCodeUnsatisfiedInput, true},
		{"wrapped", wrapped, ErrCodeUnsatisfiedInput, true},
		{"cause chain", chained, ErrCodeUnsatisfiedInput, true},
		{"outer code", chained, ErrCodeInternal, true},
		{"other code", base, ErrCodeCycle, false},
		{"plain error", stderrors.New("x"), ErrCodeInternal, false},
		{"nil", nil, ErrCodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCode(tt.err, tt.code); got != tt.want {
				t.Errorf("HasCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDomainConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"duplicate field", DuplicateField("x"), ErrCodeDuplicateField},
		{"type violation", TypeViolation("x", "int", "s"), ErrCodeTypeViolation},
		{"link", LinkError("a->b", "r"), ErrCodeLinkError},
		{"export", ExportError("p", "r"), ErrCodeExportError},
		{"frozen", DefinitionFrozen("AddLink"), ErrCodeDefinitionFrozen},
		{"cycle", Cycle([]string{"a", "b"}), ErrCodeCycle},
		{"missing output", MissingOutputPath("out"), ErrCodeMissingOutputPath},
		{"iteration shape", IterationShape("it", map[string]int{"a": 1, "b": 2}), ErrCodeIterationShape},
		{"unknown attribute", UnknownAttribute("subject"), ErrCodeUnknownAttribute},
		{"duplicate binding", DuplicateAttributeBinding("t1"), ErrCodeDuplicateAttributeBinding},
		{"context conflict", ContextConflict([]string{"FSLDIR"}), ErrCodeContextConflict},
		{"job failure", JobFailure("node1", 2), ErrCodeJobFailure},
		{"cancelled", Cancelled("workflow"), ErrCodeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.Message == "" {
				t.Error("expected a message")
			}
			if !HasCode(tt.err, tt.code) {
				t.Error("HasCode should match its own code")
			}
		})
	}
}

func TestUnsatisfiedInput_Offenders(t *testing.T) {
	err := UnsatisfiedInput([][2]string{{"node2", "input"}, {"node3", "input"}})
	offenders, ok := err.Details["offenders"].([][2]string)
	if !ok || len(offenders) != 2 {
		t.Fatalf("expected 2 offenders, got %v", err.Details["offenders"])
	}
	if !strings.Contains(err.Message, "node2.input") {
		t.Errorf("message should list offenders: %q", err.Message)
	}
}

func TestJobFailure_Retryable(t *testing.T) {
	if !JobFailure("j", 1).Retryable {
		t.Error("job failures are retryable")
	}
	if DuplicateField("x").Retryable {
		t.Error("structural errors are not retryable")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := Validation("bad").WithDetail("a", 1).WithDetails(map[string]any{"b": 2})
	if err.Details["a"] != 1 || err.Details["b"] != 2 {
		t.Errorf("unexpected details %v", err.Details)
	}
	resp := err.ToResponse()
	if resp.Error.Code != ErrCodeInvalidInput {
		t.Errorf("unexpected response code %s", resp.Error.Code)
	}
}

func TestAsAppError(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("job", "1"))
	appErr, ok := AsAppError(err)
	if !ok || appErr.Code != ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND AppError, got %v", err)
	}
	if IsAppError(stderrors.New("plain")) {
		t.Error("plain errors are not AppErrors")
	}
}

func TestFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"app error", fmt.Errorf("wrapped: %w", Cycle([]string{"a", "b"})), ErrCodeCycle},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"cancelled", context.Canceled, ErrCodeCancelled},
		{"plain", stderrors.New("disk full"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err, "workflow")
			if got.Code != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Code)
			}
		})
	}
	if From(nil, "workflow") != nil {
		t.Error("expected nil for a nil error")
	}
}
