// Package errors provides structured API errors with HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gbilton/elections-2022/internal/domain"
)

// ErrorType is the category of an API error. It is also the metric label.
type ErrorType string

const (
	TypeValidation  ErrorType = "validation"
	TypeNotFound    ErrorType = "not_found"
	TypeInternal    ErrorType = "internal"
	TypeUnavailable ErrorType = "unavailable"
)

// Error is a structured error with type, message, cause and fields.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code for the error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Fields: make(map[string]any)}
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

// WithField adds a field to the error (chainable).
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// Response is the JSON body sent to clients.
type Response struct {
	Error  string         `json:"error"`
	Type   ErrorType      `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type, Fields: e.Fields}
}

// AsStructuredError converts any error into a structured Error. Domain
// sentinels map to their API counterparts; anything else is internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	if errors.Is(err, domain.ErrNotFound) {
		return newError(TypeNotFound, "not found", err)
	}

	return InternalError("internal server error", err)
}
