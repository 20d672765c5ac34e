package common

import (
	"errors"
	"net/http"
)

// Machine-readable error codes surfaced in API responses.
const (
	CodeBadRequest             = "BAD_REQUEST"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeIdempotencyConflict    = "IDEMPOTENCY_CONFLICT"
	CodeLockFailed             = "LOCK_FAILED"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternal               = "INTERNAL_ERROR"
	CodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
)

// Common error types
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrConflict       = errors.New("resource conflict")
	ErrValidation     = errors.New("validation error")
	ErrLockFailed     = errors.New("lock acquisition failed")
)

// AppError represents an application error with HTTP status code and a
// machine-readable error code. Operational errors (everything except
// INTERNAL_ERROR) surface unchanged to the caller.
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped error for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, errorCode, message string, err error) *AppError {
	return &AppError{
		Code:      code,
		ErrorCode: errorCode,
		Message:   message,
		Err:       err,
	}
}

func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Code: http.StatusNotFound, ErrorCode: CodeNotFound, Message: message, Err: err}
}

func NewBadRequestError(message string, err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, ErrorCode: CodeBadRequest, Message: message, Err: err}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: http.StatusBadRequest, ErrorCode: CodeValidation, Message: message, Err: ErrValidation}
}

// NewInvalidStateError reports a ride lifecycle guard violation.
func NewInvalidStateError(message string) *AppError {
	return &AppError{Code: http.StatusBadRequest, ErrorCode: CodeInvalidStateTransition, Message: message, Err: ErrConflict}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, ErrorCode: CodeUnauthorized, Message: message, Err: ErrUnauthorized}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: http.StatusForbidden, ErrorCode: CodeForbidden, Message: message, Err: ErrForbidden}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: http.StatusConflict, ErrorCode: CodeConflict, Message: message, Err: ErrConflict}
}

// NewLockFailedError reports a lost distributed-lock or row-lock race.
// Callers may retry with backoff.
func NewLockFailedError(message string) *AppError {
	return &AppError{Code: http.StatusConflict, ErrorCode: CodeLockFailed, Message: message, Err: ErrLockFailed}
}

// NewIdempotencyConflictError reports an idempotency key reused with a
// different request body.
func NewIdempotencyConflictError(message string) *AppError {
	return &AppError{Code: http.StatusConflict, ErrorCode: CodeIdempotencyConflict, Message: message, Err: ErrConflict}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, ErrorCode: CodeRateLimited, Message: message, Err: ErrBadRequest}
}

func NewInternalError(message string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, ErrorCode: CodeInternal, Message: message, Err: err}
}

func NewInternalServerError(message string) *AppError {
	return &AppError{Code: http.StatusInternalServerError, ErrorCode: CodeInternal, Message: message, Err: ErrInternalServer}
}

func NewServiceUnavailableError(message string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, ErrorCode: CodeServiceUnavailable, Message: message, Err: err}
}

// AsAppError converts any error into an AppError, wrapping unknown errors
// as internal so their details never leak to clients.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("internal server error", err)
}
