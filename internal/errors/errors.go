// Package errors provides unified error handling keyed off a plain error
// code enum (the teacher's protobuf-generated ErrorCode is not reproducible
// here without running protoc; this package keeps its wrapping shape while
// defining codes by hand).
package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind enumerates the error kinds named by the pipeline's error table.
type ErrorKind string

const (
	Unknown ErrorKind = "UNKNOWN"
	Internal ErrorKind = "INTERNAL"
	InvalidArgument ErrorKind = "INVALID_ARGUMENT"
	Unavailable ErrorKind = "UNAVAILABLE"
	Timeout ErrorKind = "TIMEOUT"

	// NoInputDevice: AudioCapture.Prepare could not open the default/
	// selected input source. Surfaced to caller; recording not started.
	NoInputDevice ErrorKind = "NO_INPUT_DEVICE"
	// ModelLoadFailed: Transcriber construction failed. Surfaced; Pipeline
	// retains no Transcriber.
	ModelLoadFailed ErrorKind = "MODEL_LOAD_FAILED"
	// TranscribeFailed: a transcribe call failed. Returned as empty
	// segments with nonzero wall time; treated as nothing to output.
	TranscribeFailed ErrorKind = "TRANSCRIBE_FAILED"
	// HotkeyPermissionDenied: InputHook.Start could not register the
	// global hotkey (commonly an OS permission prompt). Surfaced.
	HotkeyPermissionDenied ErrorKind = "HOTKEY_PERMISSION_DENIED"
	// InjectionFailed: TextInjector failed to deliver text. Logged and
	// swallowed; user sees no text, next transcription still runs.
	InjectionFailed ErrorKind = "INJECTION_FAILED"
)

var grpcCodeMap = map[ErrorKind]codes.Code{
	Unknown:                codes.Unknown,
	Internal:               codes.Internal,
	InvalidArgument:        codes.InvalidArgument,
	Unavailable:            codes.Unavailable,
	Timeout:                codes.DeadlineExceeded,
	NoInputDevice:          codes.Unavailable,
	ModelLoadFailed:        codes.Unavailable,
	TranscribeFailed:       codes.Internal,
	HotkeyPermissionDenied: codes.PermissionDenied,
	InjectionFailed:        codes.Internal,
}

// AppError is the base error type with a structured code and optional
// metadata/cause.
type AppError struct {
	Code     ErrorKind
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus lets an *AppError be returned directly as a gRPC error.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Error())
}

// New creates an AppError with the given code and message.
func New(code ErrorKind, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code ErrorKind, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError, returning it for chaining.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks if an error carries a specific code.
func IsCode(err error, code ErrorKind) bool {
	var appErr *AppError
	if as(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true for error kinds worth retrying (used to guard
// Transcriber calls, distinct from the gRPC-status-based IsRetryableGRPC
// predicate in package resilience).
func IsRetryable(err error) bool {
	var appErr *AppError
	if !as(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, TranscribeFailed:
		return true
	default:
		return false
	}
}

// as is a tiny local shim over errors.As to avoid importing the stdlib
// "errors" package under a name that collides with this package's own name.
func as(err error, target **AppError) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
