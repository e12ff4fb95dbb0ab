package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeInvalid            ErrorCode = "INVALID_INPUT"
	ErrCodeDuplicateEmail     ErrorCode = "DUPLICATE_EMAIL"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeTooManyAttempts    ErrorCode = "TOO_MANY_ATTEMPTS"
	ErrCodeInternal           ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	// Field names the offending input field for INVALID_INPUT errors.
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewFieldError builds an INVALID_INPUT error bound to a request field.
func NewFieldError(field, message string) *Error {
	return &Error{Code: ErrCodeInvalid, Message: message, Field: field}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrUserNotFound       = NewError(ErrCodeNotFound, "user not found")
	ErrTaskNotFound       = NewError(ErrCodeNotFound, "task not found")
	ErrUnauthorized       = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrForbidden          = NewError(ErrCodeForbidden, "forbidden")
	ErrInvalidPayload     = NewError(ErrCodeInvalid, "invalid payload")
	ErrDuplicateEmail     = NewError(ErrCodeDuplicateEmail, "email already registered")
	ErrInvalidCredentials = NewError(ErrCodeInvalidCredentials, "invalid email or password")
	ErrTooManyAttempts    = NewError(ErrCodeTooManyAttempts, "too many login attempts, try again later")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the domain code of err, or ErrCodeInternal for anything else.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var dErr *Error
	if errors.As(err, &dErr) && dErr != nil {
		return dErr.Code
	}
	return ErrCodeInternal
}

// IsDomain reports whether err carries a domain classification at all.
func IsDomain(err error) bool {
	var dErr *Error
	return errors.As(err, &dErr) && dErr != nil
}
