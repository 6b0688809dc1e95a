// Package errors carries typed errors from handlers to the JSON error envelope.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType groups errors for the response envelope and the error counter.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"
	TypeUnauthorized ErrorType = "unauthorized"
	TypeForbidden    ErrorType = "forbidden"
	TypeNotFound     ErrorType = "not_found"
	TypeConflict     ErrorType = "conflict"
	TypeRateLimited  ErrorType = "rate_limited"
	TypeInternal     ErrorType = "internal"
	TypeExternal     ErrorType = "external"
)

var statusOf = map[ErrorType]int{
	TypeValidation:   http.StatusBadRequest,
	TypeUnauthorized: http.StatusUnauthorized,
	TypeForbidden:    http.StatusForbidden,
	TypeNotFound:     http.StatusNotFound,
	TypeConflict:     http.StatusConflict,
	TypeRateLimited:  http.StatusTooManyRequests,
	TypeInternal:     http.StatusInternalServerError,
	TypeExternal:     http.StatusBadGateway,
}

// Error is what a handler returns when the client should see a specific status and reason.
// Code is the stable reason clients switch on, e.g. "not_an_admin". Cause never leaves the server.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]any
}

func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message, Context: map[string]any{}}
}

func ValidationError(message string) *Error   { return New(TypeValidation, message) }
func UnauthorizedError(message string) *Error { return New(TypeUnauthorized, message) }
func ForbiddenError(message string) *Error    { return New(TypeForbidden, message) }
func NotFoundError(message string) *Error     { return New(TypeNotFound, message) }
func RateLimitedError(message string) *Error  { return New(TypeRateLimited, message) }

func InternalError(message string, cause error) *Error {
	return New(TypeInternal, message).WithCause(cause)
}

func (e *Error) Error() string {
	msg := string(e.Type) + ": " + e.Message
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the type to a status; unknown types are 500.
func (e *Error) HTTPStatus() int {
	if status, ok := statusOf[e.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField adds a key to the context that is echoed in the response and the log line.
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body of every REST error.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Type: e.Type, Code: e.Code, Context: e.Context}
}

// AsStructuredError finds an *Error anywhere in err's chain. Anything else becomes an
// internal error whose message hides the cause.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return InternalError("internal server error", err)
}
