package errors

import (
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestAppErrorMessage(t *testing.T) {
	e := New(NoInputDevice, "no default device")
	if got := e.Error(); got == "" {
		t.Fatal("Error() empty")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	e := Wrap(cause, TranscribeFailed, "transcribe call failed")
	if e.Unwrap() != cause {
		t.Errorf("Unwrap() did not return cause")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want codes.Code
	}{
		{NoInputDevice, codes.Unavailable},
		{ModelLoadFailed, codes.Unavailable},
		{TranscribeFailed, codes.Internal},
		{HotkeyPermissionDenied, codes.PermissionDenied},
		{InjectionFailed, codes.Internal},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := New(tt.kind, "x")
			if got := e.GRPCCode(); got != tt.want {
				t.Errorf("GRPCCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	e := New(HotkeyPermissionDenied, "denied")
	if !IsCode(e, HotkeyPermissionDenied) {
		t.Errorf("IsCode true case failed")
	}
	if IsCode(e, InjectionFailed) {
		t.Errorf("IsCode false case failed")
	}
	if IsCode(fmt.Errorf("plain"), InjectionFailed) {
		t.Errorf("IsCode on non-AppError should be false")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(TranscribeFailed, "x")) {
		t.Errorf("TranscribeFailed should be retryable")
	}
	if IsRetryable(New(HotkeyPermissionDenied, "x")) {
		t.Errorf("HotkeyPermissionDenied should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Errorf("plain error should not be retryable")
	}
}

func TestWithMetadata(t *testing.T) {
	e := New(ModelLoadFailed, "x").WithMetadata("path", "/models/ggml.bin")
	if e.Metadata["path"] != "/models/ggml.bin" {
		t.Errorf("metadata not set")
	}
}
