package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInternal        = errors.New("internal error")
	ErrConsistency     = errors.New("consistency violation")
	ErrUpstream        = errors.New("upstream failure")
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error. The message is surfaced verbatim to the
// caller, so it must be human-readable and user-correctable.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Consistency creates a 400 error for a request whose parts disagree with
// each other (item/file count mismatch, declared vs actual type mismatch).
// The whole operation is aborted; nothing is partially applied.
func Consistency(message string) *AppError {
	return &AppError{
		Code:    "CONSISTENCY_ERROR",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrConsistency,
	}
}

// Upstream creates a 500 error for an object-storage or remote-fetch failure.
func Upstream(message string, err error) *AppError {
	return &AppError{
		Code:    "UPSTREAM_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     fmt.Errorf("%w: %w", ErrUpstream, err),
	}
}

// UpstreamTimeout creates a 504 error for an upstream call that exceeded its
// deadline. Kept distinct from Upstream so callers can tell a slow dependency
// from a broken one.
func UpstreamTimeout(message string, err error) *AppError {
	return &AppError{
		Code:    "UPSTREAM_TIMEOUT",
		Message: message,
		Status:  http.StatusGatewayTimeout,
		Err:     fmt.Errorf("%w: %w", ErrUpstreamTimeout, err),
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrConsistency):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
