package api

import (
	"errors"
	"net/http"

	"encodefleet/internal/queue"
	"encodefleet/internal/services"
)

// Code is a public error code.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_STATE_TRANSITION"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodePasswordRequired  Code = "PASSWORD_REQUIRED"
	CodePasswordInvalid   Code = "PASSWORD_INVALID"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeCapacityExhausted Code = "CAPACITY_EXHAUSTED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

var statusByCode = map[Code]int{
	CodeNotFound:          http.StatusNotFound,
	CodeInvalidTransition: http.StatusConflict,
	CodeValidation:        http.StatusBadRequest,
	CodePasswordRequired:  http.StatusBadRequest,
	CodePasswordInvalid:   http.StatusUnauthorized,
	CodeUnauthorized:      http.StatusUnauthorized,
	CodeRateLimited:       http.StatusTooManyRequests,
	CodeCapacityExhausted: http.StatusServiceUnavailable,
	CodeInternal:          http.StatusInternalServerError,
}

const internalMessage = "internal error"

// Error is an error with a public code and message.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error whose HTTP status follows code.
func NewError(code Code, message string) *Error {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Code: code, Status: status, Message: message}
}

// Validation reports malformed request input.
func Validation(message string) *Error {
	return NewError(CodeValidation, message)
}

// Classify maps err onto a public Error. Unknown errors become INTERNAL_ERROR
// with a generic message; the cause stays in Err for logging.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var code Code
	switch {
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, services.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		code = CodeInvalidTransition
	case errors.Is(err, queue.ErrInvalidArgument), errors.Is(err, services.ErrValidation):
		code = CodeValidation
	case errors.Is(err, queue.ErrCapacityExhausted):
		code = CodeCapacityExhausted
	default:
		out := NewError(CodeInternal, internalMessage)
		out.Err = err
		return out
	}
	out := NewError(code, err.Error())
	out.Err = err
	return out
}
