// Package apperr defines the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. Codes are stable and returned to clients.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnknownTenant       Code = "UNKNOWN_TENANT"
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodeInvalidCredential   Code = "INVALID_CREDENTIAL"
	CodeInvalidOTP          Code = "INVALID_OTP"
	CodeNoSession           Code = "NO_SESSION_FOUND"
	CodeExpired             Code = "OTP_EXPIRED"
	CodeTooManyAttempts     Code = "TOO_MANY_ATTEMPTS"
	CodeDatabaseUnavailable Code = "DATABASE_UNAVAILABLE"
	CodeGateway             Code = "GATEWAY_ERROR"
	CodeAggregation         Code = "AGGREGATION_FAILURE"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL"
)

// Sentinels for errors.Is. Matching is by code, so any *Error carrying the
// same code matches regardless of message or cause.
var (
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrUnknownTenant       = &Error{Code: CodeUnknownTenant, Message: "invalid office selection"}
	ErrUserNotFound        = &Error{Code: CodeUserNotFound, Message: "user not found"}
	ErrInvalidCredential   = &Error{Code: CodeInvalidCredential, Message: "invalid password"}
	ErrInvalidOTP          = &Error{Code: CodeInvalidOTP, Message: "invalid OTP"}
	ErrNoSession           = &Error{Code: CodeNoSession, Message: "no OTP request found, please login again"}
	ErrExpired             = &Error{Code: CodeExpired, Message: "OTP has expired, please login again"}
	ErrTooManyAttempts     = &Error{Code: CodeTooManyAttempts, Message: "maximum OTP attempts exceeded, please login again"}
	ErrDatabaseUnavailable = &Error{Code: CodeDatabaseUnavailable, Message: "database unavailable"}
	ErrGateway             = &Error{Code: CodeGateway, Message: "SMS gateway call failed"}
	ErrAggregation         = &Error{Code: CodeAggregation, Message: "aggregation failed"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
)

// Error is a classified application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New returns an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code. A nil err yields nil.
func Wrap(code Code, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Validation is shorthand for a 400 validation failure.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps err to the status code returned at the endpoint boundary.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch CodeOf(err) {
	case CodeValidation, CodeNoSession, CodeExpired:
		return http.StatusBadRequest
	case CodeNotFound, CodeUnknownTenant, CodeUserNotFound:
		return http.StatusNotFound
	case CodeInvalidCredential, CodeInvalidOTP, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTooManyAttempts, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
