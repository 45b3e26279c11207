// Package apperrors is the structured error carrier shared by the engine, the
// repositories and the HTTP layer. Every error that crosses a package boundary
// carries a Code so handlers can map it to a status without string matching.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an AppError
type ErrorCode string

const (
	CodeConfigInvalid   ErrorCode = "CONFIG_INVALID"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeRetrievalFailed ErrorCode = "RETRIEVAL_FAILED"
	CodeStorageFailed   ErrorCode = "STORAGE_FAILED"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeUnavailable     ErrorCode = "UNAVAILABLE"
	CodeInternal        ErrorCode = "INTERNAL"
)

// AppError is the single structured error type. It supports errors.Is/As
// through Unwrap.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithDetail returns a copy with Detail set
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// New creates an AppError without a cause
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. A nil err returns nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// IsCode reports whether any AppError in err's chain has code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// GetCode returns the outermost code, or CodeInternal for foreign errors
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to a response status
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeRetrievalFailed, CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeStorageFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(message string) *AppError     { return New(CodeNotFound, message) }
func InvalidInput(message string) *AppError { return New(CodeInvalidInput, message) }
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}
