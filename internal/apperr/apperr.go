package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeAuth              = "auth_error"
	CodeValidation        = "validation_error"
	CodeForbidden         = "forbidden"
	CodeInvalidTransition = "invalid_transition"
	CodeConflict          = "conflict"
	CodeGatewayTimeout    = "gateway_timeout"
	CodeGatewayError      = "gateway_error"
	CodePaymentFailed     = "payment_failed"
	CodeUnavailable       = "unavailable"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal_error"
)

// AppError is the error type surfaced by services to handlers and websocket commands.
type AppError struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Err     error
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

// Retryable reports whether the caller may retry the same request unchanged.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case CodeGatewayTimeout, CodeConflict, CodePaymentFailed, CodeUnavailable:
		return true
	}
	return false
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func Auth(message string, err error) *AppError {
	return New(CodeAuth, message, http.StatusUnauthorized, err)
}

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusUnprocessableEntity, nil)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden, nil)
}

func InvalidTransition(from, to string) *AppError {
	e := New(CodeInvalidTransition, fmt.Sprintf("cannot move from %s to %s", from, to), http.StatusConflict, nil)
	e.Details = map[string]interface{}{
		"current":   from,
		"attempted": to,
	}
	return e
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict, nil)
}

func GatewayTimeout(message string, err error) *AppError {
	return New(CodeGatewayTimeout, message, http.StatusGatewayTimeout, err)
}

// BadGateway reports a gateway that answered but refused the request.
func BadGateway(message string, err error) *AppError {
	return New(CodeGatewayError, message, http.StatusBadGateway, err)
}

// PaymentFailed reports a payment whose proof did not verify. The milestone is unchanged.
func PaymentFailed(message string) *AppError {
	return New(CodePaymentFailed, message, http.StatusPaymentRequired, nil)
}

func Unavailable(message string) *AppError {
	return New(CodeUnavailable, message, http.StatusServiceUnavailable, nil)
}

func NotFound(resource string, err error) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, err)
}

func Internal(message string, err error) *AppError {
	return New(CodeInternal, message, http.StatusInternalServerError, err)
}

// As extracts an *AppError from the chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func Is(err error, code string) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == code
	}
	return false
}
