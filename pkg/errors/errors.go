// Package errors provides the structured error type used across authgate.
// Every failure that can reach a client carries a machine-readable code from
// which the transport layer derives its status, so handlers never need to
// inspect error strings.
//
// # Error Categories
//
//   - Validation errors: malformed requests, missing login fields
//   - Authentication errors: missing, invalid or expired tokens and
//     credential mismatches
//   - NotFound errors: unknown routes or records
//   - Internal errors: signing failures and other server faults
//   - Unavailable errors: a credential backend cannot be reached
//   - Timeout errors: a credential backend did not answer in time
//
// # Usage
//
//	err := errors.New(errors.CodeAuthenticationMissing, "Token not provided")
//
//	if errors.IsAuthentication(err) {
//	    // respond 401
//	}
//
// The Message of an *Error is the client-facing text. Internal detail belongs
// in Cause, which is logged but never rendered.
package errors
