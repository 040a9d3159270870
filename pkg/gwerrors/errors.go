// Package gwerrors defines the gateway's error taxonomy and the mapping
// from that taxonomy to HTTP status codes.
package gwerrors

import "fmt"

// Code identifies the taxonomy bucket an error falls into, independent of
// the specific component that raised it.
type Code int

const (
	// CodeServerError is the catch-all for unhandled failures.
	CodeServerError Code = iota
	// CodeAuthFailure covers missing/invalid signatures and stale timestamps.
	CodeAuthFailure
	// CodeBadRequest covers unparseable URLs, unknown collections, and
	// zero content-length archives.
	CodeBadRequest
	// CodeNotFound covers a quorum of readers reporting a key absent or
	// tombstoned.
	CodeNotFound
	// CodeTransientBackend covers too few connected clients and fan-out
	// failures (archive/retrieve/destroy), including mid-stream retrieve
	// failure.
	CodeTransientBackend
)

func (c Code) String() string {
	switch c {
	case CodeAuthFailure:
		return "AuthFailure"
	case CodeBadRequest:
		return "BadRequest"
	case CodeNotFound:
		return "NotFound"
	case CodeTransientBackend:
		return "TransientBackend"
	default:
		return "ServerError"
	}
}

// GatewayError is the typed error every Application-boundary failure is
// normalized to before being translated into an HTTP response.
type GatewayError struct {
	Code       Code
	Message    string
	Collection string
	Key        string
	// RetryAfter, when non-zero, is the suggested Retry-After seconds for
	// a TransientBackend response.
	RetryAfter int
	// Status, when non-zero, overrides Code's default HTTP mapping. Used
	// for the one taxonomy entry that isn't a fixed 1:1 (BadRequest is
	// 400 generally but 403 for missing/zero content-length on archive,
	// per spec §4.9's action table).
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Collection != "" || e.Key != "" {
		return fmt.Sprintf("%s: %s (collection=%q key=%q)", e.Code, e.Message, e.Collection, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func newf(code Code, retryAfter int, format string, args ...any) *GatewayError {
	return &GatewayError{Code: code, Message: fmt.Sprintf(format, args...), RetryAfter: retryAfter}
}

// NewAuthFailure builds a 401-mapped error.
func NewAuthFailure(format string, args ...any) *GatewayError {
	return newf(CodeAuthFailure, 0, format, args...)
}

// NewBadRequest builds a 400-mapped error.
func NewBadRequest(format string, args ...any) *GatewayError {
	return newf(CodeBadRequest, 0, format, args...)
}

// NewForbiddenContentLength builds the 403 special case of BadRequest
// for a missing or zero Content-Length on an archive request.
func NewForbiddenContentLength(format string, args ...any) *GatewayError {
	ge := newf(CodeBadRequest, 0, format, args...)
	ge.Status = 403
	return ge
}

// NewNotFound builds a 404-mapped error.
func NewNotFound(format string, args ...any) *GatewayError {
	return newf(CodeNotFound, 0, format, args...)
}

// NewTransientBackend builds a 503-mapped error with the spec's standard
// 120s Retry-After.
func NewTransientBackend(format string, args ...any) *GatewayError {
	return newf(CodeTransientBackend, 120, format, args...)
}

// NewServerError builds a 500-mapped error wrapping the originating cause.
func NewServerError(err error, format string, args ...any) *GatewayError {
	ge := newf(CodeServerError, 0, format, args...)
	ge.Err = err
	return ge
}

// WithContext attaches collection/key context, returning the receiver for
// chaining at the call site.
func (e *GatewayError) WithContext(collection, key string) *GatewayError {
	e.Collection = collection
	e.Key = key
	return e
}

// HTTPStatus maps a GatewayError's taxonomy code to an HTTP status code.
// This is the gateway's single switch for error-to-protocol mapping, kept
// deliberately in one place so every branch is reviewable together.
func HTTPStatus(err error) int {
	ge, ok := err.(*GatewayError)
	if !ok {
		return 500
	}
	if ge.Status != 0 {
		return ge.Status
	}
	switch ge.Code {
	case CodeAuthFailure:
		return 401
	case CodeBadRequest:
		return 400
	case CodeNotFound:
		return 404
	case CodeTransientBackend:
		return 503
	default:
		return 500
	}
}

// As reports whether err is a *GatewayError, returning it if so.
func As(err error) (*GatewayError, bool) {
	ge, ok := err.(*GatewayError)
	return ge, ok
}
