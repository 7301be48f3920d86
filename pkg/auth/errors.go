package auth

import (
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// Client-facing messages. These are the only texts a rejected caller sees.
const (
	MsgTokenMissing       = "Token not provided"
	MsgTokenInvalid       = "Invalid Token"
	MsgTokenExpired       = "Token expired, please login again"
	MsgCredentialsMissing = "Please send a valid email - password combo"
	MsgCredentialMismatch = "Email or Password is invalid"
	MsgPasswordTooLong    = "Password must be at most 72 bytes"
	MsgServerError        = "Server Error, please try again later"
	MsgLoginSucceeded     = "Login Succeeded"
)

func errMissingToken() error {
	return sserr.New(sserr.CodeAuthenticationMissing, MsgTokenMissing)
}

func errInvalidToken(cause error, stage string) error {
	if cause == nil {
		return sserr.New(sserr.CodeAuthenticationInvalid, MsgTokenInvalid).WithDetail("stage", stage)
	}
	return sserr.Wrap(cause, sserr.CodeAuthenticationInvalid, MsgTokenInvalid).WithDetail("stage", stage)
}

func errExpiredToken(cause error) error {
	return sserr.Wrap(cause, sserr.CodeAuthenticationExpired, MsgTokenExpired)
}

func errPasswordTooLong() error {
	return sserr.New(sserr.CodeValidationRequired, MsgPasswordTooLong).
		WithDetail("max_bytes", MaxPasswordBytes)
}

func errCredentialMismatch() error {
	return sserr.New(sserr.CodeAuthenticationCredentials, MsgCredentialMismatch)
}

func errSigningFailure(cause error) error {
	return sserr.Wrap(cause, sserr.CodeInternalSigning, MsgServerError)
}

// ClientMessage returns the text that may be shown to the caller for err.
// Client errors carry their own message; everything else collapses to
// MsgServerError so internal detail never leaves the process.
func ClientMessage(err error) string {
	if e, ok := sserr.AsError(err); ok && sserr.IsClientError(err) {
		return e.Message
	}
	return MsgServerError
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	return sserr.FromError(err).HTTPStatus()
}
