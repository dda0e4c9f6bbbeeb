// Package errs provides the structured error kinds shared by the combat core.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// CodeValidationFailed covers malformed intents, unresolvable targets and
	// insufficient resources. No state is mutated.
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// CodeConflictState means the operation is invalid for the current FSM state.
	CodeConflictState Code = "CONFLICT_STATE"

	CodeNotFound Code = "NOT_FOUND"

	// CodeUpstreamUnavailable means a store read or write failed.
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"

	// CodeInvalidArgument is a programmer error (oracle domain violation,
	// impossible matchmaking parameters).
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeInternal means an invariant was violated.
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps an error kind to the HTTP status used by the API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidationFailed, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeConflictState:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying a Code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
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

// With returns a copy of e with an extra metadata entry.
func (e *Error) With(key, value string) *Error {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	cp := *e
	cp.Metadata = md
	return &cp
}

func newError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return newError(CodeValidationFailed, nil, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(CodeConflictState, nil, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, nil, format, args...)
}

func Upstream(cause error, format string, args ...any) *Error {
	return newError(CodeUpstreamUnavailable, cause, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return newError(CodeInvalidArgument, nil, format, args...)
}

func Internal(cause error, format string, args ...any) *Error {
	return newError(CodeInternal, cause, format, args...)
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
