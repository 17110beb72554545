// Package apperror defines the closed error taxonomy shared by every service.
// All failures that reach a process boundary are translated into this union
// before they are serialized.
package apperror

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind enumerates the closed set of failure classes.
type Kind int

const (
	KindBadRequest Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
	KindTooManyRequests
	KindInternal
	KindDatabase
	KindUnavailable
)

// HTTPStatus maps a kind to its wire status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine code clients switch on.
func (k Kind) Code() string {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindValidation:
		return "VALIDATION_FAILED"
	case KindTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case KindDatabase:
		return "DATABASE_ERROR"
	case KindUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// FieldError describes a single invalid field in a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the tagged variant carried through the request pipeline.
// Operational errors are expected, user-facing failures; non-operational
// errors mark defects and are flattened in hardened mode.
type Error struct {
	Kind        Kind
	Message     string
	Fields      []FieldError
	Operational bool
	Err         error
	Stack       []byte
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind sentinels produced by the same constructor.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// BadRequest marks malformed or unparsable input.
func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Operational: true}
}

// Unauthorized marks missing or failed authentication.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, Operational: true}
}

// Forbidden marks an authenticated principal lacking access.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg, Operational: true}
}

// NotFound marks a missing resource.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Operational: true}
}

// Conflict marks a state collision such as a duplicate key.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg, Operational: true}
}

// Validation carries per-field messages for a 422 response.
func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields, Operational: true}
}

// TooManyRequests marks rate-limit rejections.
func TooManyRequests(msg string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: msg, Operational: true}
}

// Unavailable marks a dependency outage the caller may retry later.
func Unavailable(msg string) *Error {
	return &Error{Kind: KindUnavailable, Message: msg, Operational: true}
}

// Database wraps a storage failure. The wire message stays generic; the cause
// is preserved for server-side logs.
func Database(err error) *Error {
	return &Error{
		Kind:        KindDatabase,
		Message:     "storage operation failed",
		Operational: true,
		Err:         err,
	}
}

// Internal wraps an unexpected failure as a defect: non-operational, with the
// stack captured at the point of translation.
func Internal(err error) *Error {
	return &Error{
		Kind:        KindInternal,
		Message:     "internal server error",
		Operational: false,
		Err:         err,
		Stack:       debug.Stack(),
	}
}
