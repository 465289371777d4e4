package ironerr

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeUnknownTool, "unknown tool requested")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}
	if err.Code != ErrCodeUnknownTool {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnknownTool)
	}
	if err.Message != "unknown tool requested" {
		t.Errorf("Message = %v, want 'unknown tool requested'", err.Message)
	}
	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}
	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}
	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("original error")
	err := Wrap(underlying, ErrCodeStorageRead, "failed to read storage")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}
	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}
	if err.Code != ErrCodeStorageRead {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStorageRead)
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Error("Error string should include underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	err := Wrap(nil, ErrCodeInternal, "test")
	if err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeUpstreamToolError, "tool failed")
	err.WithContext("tool", "read_file")
	err.WithContext("exit_code", 1)

	if err.Context["tool"] != "read_file" {
		t.Error("Context should contain 'tool' key")
	}
	if err.Context["exit_code"] != 1 {
		t.Error("Context should contain 'exit_code' key")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "tool") || !strings.Contains(errStr, "read_file") {
		t.Error("Error string should include context")
	}
}

func TestWithRetryable(t *testing.T) {
	err := New(ErrCodeLLMCallFailed, "request timed out")
	err.WithRetryable(true)

	if !err.Retryable {
		t.Error("WithRetryable should set Retryable to true")
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable should return true")
	}
}

func TestError_String(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "invalid config value")
	errStr := err.Error()

	if !strings.Contains(errStr, string(ErrCodeConfigInvalid)) {
		t.Error("Error string should contain error code")
	}
	if !strings.Contains(errStr, "invalid config value") {
		t.Error("Error string should contain message")
	}
}

func TestError_WithUnderlying(t *testing.T) {
	underlying := errors.New("file not found")
	err := Wrap(underlying, ErrCodeStorageRead, "failed to read")

	errStr := err.Error()
	if !strings.Contains(errStr, "file not found") {
		t.Error("Error string should include underlying error")
	}
	if !strings.Contains(errStr, "STORAGE_READ") {
		t.Error("Error string should include error code")
	}
}

func TestUnwrap(t *testing.T) {
	underlying := errors.New("underlying")
	err := Wrap(underlying, ErrCodeInternal, "wrapped")

	if err.Unwrap() != underlying {
		t.Error("Unwrap should return underlying error")
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeMITMSentinelBad, "sentinel mismatch")

	if !IsCode(err, ErrCodeMITMSentinelBad) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeMITMUpstream) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeMITMSentinelBad) {
		t.Error("IsCode should return false for nil error")
	}

	stdErr := errors.New("standard error")
	if IsCode(stdErr, ErrCodeInternal) {
		t.Error("IsCode should return false for non-ironerr errors")
	}
}

func TestGetCode(t *testing.T) {
	code := GetCode(New(ErrCodeEscalationTimeout, "timeout"))
	if code != ErrCodeEscalationTimeout {
		t.Errorf("GetCode = %v, want %v", code, ErrCodeEscalationTimeout)
	}
	if GetCode(nil) != "" {
		t.Error("GetCode should return empty string for nil")
	}

	stdErr := errors.New("standard")
	if GetCode(stdErr) != ErrCodeInternal {
		t.Error("GetCode should return ErrCodeInternal for non-ironerr errors")
	}
}

func TestIsRetryable_Function(t *testing.T) {
	retryable := New(ErrCodeLLMCallFailed, "rate limited").WithRetryable(true)
	notRetryable := New(ErrCodeConfigInvalid, "bad config")

	if !IsRetryable(retryable) {
		t.Error("IsRetryable should return true for retryable error")
	}
	if IsRetryable(notRetryable) {
		t.Error("IsRetryable should return false for non-retryable error")
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable should return false for nil")
	}

	stdErr := errors.New("standard")
	if IsRetryable(stdErr) {
		t.Error("IsRetryable should return false for non-ironerr errors")
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "test error")
	trace := err.StackTrace()

	if trace == "" {
		t.Error("StackTrace should return non-empty string")
	}
	if !strings.Contains(trace, "Stack trace:") {
		t.Error("StackTrace should contain header")
	}
	if len(err.Stack) == 0 {
		t.Error("Stack should have frames")
	}
}

func TestFrame_String(t *testing.T) {
	frame := Frame{
		Function: "github.com/ironcurtain/ironcurtain/pkg/ironerr.TestFunc",
		File:     "/path/to/file.go",
		Line:     42,
	}

	if str := frame.String(); str != frame.Function {
		t.Errorf("Frame.String() = %v, want %v", str, frame.Function)
	}
}

func TestCaptureStack(t *testing.T) {
	frames := captureStack(0)
	if len(frames) == 0 {
		t.Error("captureStack should return at least one frame")
	}

	found := false
	for _, frame := range frames {
		if strings.Contains(frame.Function, "Test") || strings.Contains(frame.Function, "ironerr") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Stack should contain test or ironerr package frames")
	}
}

func TestMultipleContext(t *testing.T) {
	err := New(ErrCodeVerifyFailed, "scenario verification failed")
	err.WithContext("scenario_id", "123")
	err.WithContext("attempt", 2)
	err.WithContext("reason", "timeout")

	if len(err.Context) != 3 {
		t.Errorf("Context should have 3 entries, got %d", len(err.Context))
	}

	errStr := err.Error()
	for _, key := range []string{"scenario_id", "attempt", "reason"} {
		if !strings.Contains(errStr, key) {
			t.Errorf("Error string should contain context key %q", key)
		}
	}
}

func TestChaining(t *testing.T) {
	err := New(ErrCodeLLMCallFailed, "API failed").
		WithContext("model", "compiler-model").
		WithContext("status_code", 429).
		WithRetryable(true)

	if err.Code != ErrCodeLLMCallFailed {
		t.Error("Chaining should preserve code")
	}
	if len(err.Context) != 2 {
		t.Error("Chaining should add all context")
	}
	if !err.Retryable {
		t.Error("Chaining should set retryable")
	}
}

func TestErrorCodes_Defined(t *testing.T) {
	codes := []ErrorCode{
		ErrCodePolicyValidation,
		ErrCodePolicyUnknownRole,
		ErrCodePolicyRelativeWithin,
		ErrCodePolicyStructuralRule,
		ErrCodeListMissing,
		ErrCodeAnnotationMismatch,
		ErrCodeAnnotationMissing,
		ErrCodeUnknownTool,
		ErrCodeUpstreamToolError,
		ErrCodeCircuitBreakerOpen,
		ErrCodeEscalationTimeout,
		ErrCodeEscalationIO,
		ErrCodeMITMHostDenied,
		ErrCodeMITMEndpointDenied,
		ErrCodeMITMSentinelBad,
		ErrCodeMITMUpstream,
		ErrCodeMITMHandshake,
		ErrCodeSandboxUnsupported,
		ErrCodeSandboxExec,
		ErrCodeLLMCallFailed,
		ErrCodeCacheCorrupt,
		ErrCodeVerifyFailed,
		ErrCodeDiscoveryError,
		ErrCodeConfigLoad,
		ErrCodeConfigParse,
		ErrCodeConfigInvalid,
		ErrCodeStorageRead,
		ErrCodeStorageWrite,
		ErrCodeAuditWrite,
		ErrCodeInternal,
		ErrCodeInvalidInput,
		ErrCodeNotImplemented,
	}

	for _, code := range codes {
		if code == "" {
			t.Error("Error code should not be empty")
		}
	}
}
