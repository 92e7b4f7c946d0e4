package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

// Fault taxonomy for the engine. Eligibility rejections are NOT errors;
// they are reason codes returned by the evaluator. These types cover
// genuine faults only.
const (
	ErrTransient     ErrorType = "TRANSIENT"      // timeouts, upstream 5xx; retryable
	ErrDataIntegrity ErrorType = "DATA_INTEGRITY" // inconsistent upstream data, bad config JSON
	ErrFatal         ErrorType = "FATAL"          // storage unavailable; abort the strategy's pass
	ErrNotFound      ErrorType = "NOT_FOUND"
	ErrUpstream      ErrorType = "UPSTREAM_ERROR"
	ErrRiskPaused    ErrorType = "RISK_PAUSED"
	ErrInvalid       ErrorType = "INVALID_REQUEST"
	ErrInternal      ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
	}
}

func Transient(msg string, cause error) *AppError {
	return New(ErrTransient, msg, cause)
}

func DataIntegrity(msg string, cause error) *AppError {
	return New(ErrDataIntegrity, msg, cause)
}

func Fatal(msg string, cause error) *AppError {
	return New(ErrFatal, msg, cause)
}

func NotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsTransient reports whether err should be retried at the call site.
func IsTransient(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == ErrTransient
}

// IsNotFound reports an explicit NotFound, which callers must never
// treat as "market still open".
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == ErrNotFound
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalid:
		return http.StatusBadRequest
	case ErrRiskPaused:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrTransient, ErrUpstream:
		return http.StatusBadGateway
	case ErrFatal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
