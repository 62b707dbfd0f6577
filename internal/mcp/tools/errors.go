package tools

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/unbrowse/unbrowse/internal/fault"
)

// Error codes for MCP tool responses.
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeCaptureBusy  = "CAPTURE_IN_FLIGHT"
	ErrCodePrecondition = "PRECONDITION"
	ErrCodeUpstream     = "UPSTREAM_ERROR"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeEngine       = "ENGINE_ERROR"
)

// CodedError is an error with an associated error code.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// WrapEngineError converts an engine fault (or any error) to a coded
// error for tool responses. auth_required never reaches here: handlers
// turn it into an auth recommendation in the output instead.
func WrapEngineError(err error) error {
	if err == nil {
		return nil
	}

	code := ErrCodeEngine
	switch fault.CodeOf(err) {
	case fault.CodeNotFound:
		code = ErrCodeNotFound
	case fault.CodeInput:
		code = ErrCodeInvalidInput
	case fault.CodeCaptureInFlight:
		code = ErrCodeCaptureBusy
	case fault.CodePrecondition:
		code = ErrCodePrecondition
	case fault.CodeUpstream, fault.CodeReplayMismatch:
		code = ErrCodeUpstream
	case fault.CodeSchedule:
		code = ErrCodeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		code = ErrCodeTimeout
	}

	coded := &CodedError{
		Code:    code,
		Message: fault.MessageOf(err),
		Cause:   err,
	}
	slog.Warn("engine error",
		slog.String("code", coded.Code),
		slog.String("message", coded.Message),
	)
	return coded
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) error {
	return &CodedError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string) error {
	return &CodedError{
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}
