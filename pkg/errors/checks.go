package errors

import (
	"errors"
)

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "" if
// there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
//
//	if errors.HasCode(err, errors.CodeAuthenticationExpired) {
//	    // ask the client to log in again
//	}
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports whether err is a VAL_xxx error.
func IsValidation(err error) bool {
	return hasCategory(err, "VAL")
}

// IsAuthentication reports whether err is an AUTH_xxx error.
func IsAuthentication(err error) bool {
	return hasCategory(err, "AUTH")
}

// IsNotFound reports whether err is an NF_xxx error.
func IsNotFound(err error) bool {
	return hasCategory(err, "NF")
}

// IsInternal reports whether err is an INT_xxx error.
func IsInternal(err error) bool {
	return hasCategory(err, "INT")
}

// IsUnavailable reports whether err is an UNAVAIL_xxx error.
func IsUnavailable(err error) bool {
	return hasCategory(err, "UNAVAIL")
}

// IsConflict reports whether err is a CONFLICT_xxx error.
func IsConflict(err error) bool {
	return hasCategory(err, "CONFLICT")
}

// IsTimeout reports whether err is a TIMEOUT_xxx error.
func IsTimeout(err error) bool {
	return hasCategory(err, "TIMEOUT")
}

// IsRetryable reports whether retrying the operation may succeed. Only
// timeout and unavailable errors qualify; a rejected token never becomes
// valid by retrying.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}

// IsClientError reports whether err is caused by the request rather than
// the server (4xx).
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "VAL", "AUTH", "NF", "CONFLICT":
		return true
	default:
		return false
	}
}

// IsServerError reports whether err is a server fault (5xx). Errors that are
// not *Error are treated as server faults.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	e, ok := AsError(err)
	if !ok {
		return true
	}
	switch e.Code.Category() {
	case "INT", "UNAVAIL", "TIMEOUT":
		return true
	default:
		return false
	}
}
