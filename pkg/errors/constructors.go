package errors

import (
	"errors"
	"fmt"
)

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err with a code and message. Wrap returns nil if err is nil.
//
//	row, err := pool.QueryRow(ctx, sql, email)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "credential lookup failed")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps err with a formatted message. Wrapf returns nil if err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Validation creates a CodeValidation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Required creates a CodeValidationRequired error.
func Required(message string) *Error {
	return New(CodeValidationRequired, message)
}

// NotFound creates a CodeNotFound error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Unauthorized creates a CodeAuthentication error.
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// Internal creates a CodeInternal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Unavailable creates a CodeUnavailable error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Timeout creates a CodeTimeout error.
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// FromError returns err as an *Error. An *Error anywhere in the chain is
// returned as-is; any other error is wrapped as CodeInternal with a generic
// message so its text never reaches a client.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
