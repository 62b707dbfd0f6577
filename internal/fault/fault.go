// Package fault defines the error taxonomy shared by the HTTP service,
// the MCP tools and the CLI. Every user-visible failure carries a
// machine-readable code and a one-line message; secrets never appear in
// either.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies a failure kind.
type Code string

const (
	CodeInput           Code = "input"
	CodeNotFound        Code = "not_found"
	CodeAuthRequired    Code = "auth_required"
	CodeCaptureInFlight Code = "capture_in_flight"
	CodeUpstream        Code = "upstream"
	CodeReplayMismatch  Code = "replay_mismatch"
	CodePrecondition    Code = "precondition"
	CodeSchedule        Code = "schedule"
	CodeInternal        Code = "internal"
)

// Error is an error with an associated taxonomy code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NotFound creates a not_found error for a named resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// Input creates an input error.
func Input(format string, args ...any) *Error {
	return &Error{Code: CodeInput, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from an error chain. Uncoded errors
// classify as internal; nil maps to the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// MessageOf returns the human-readable message without the code prefix.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Cause != nil {
			return fmt.Sprintf("%s: %v", coded.Message, coded.Cause)
		}
		return coded.Message
	}
	return err.Error()
}
