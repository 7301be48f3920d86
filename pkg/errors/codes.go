package errors

// Code is a machine-readable error identifier of the form CATEGORY_NNN.
// Codes are stable once assigned; clients and alerts may match on them.
type Code string

// Categories and the HTTP status each one maps to:
//
//	VAL_xxx      - 400 Bad Request
//	AUTH_xxx     - 401 Unauthorized
//	NF_xxx       - 404 Not Found
//	CONFLICT_xxx - 409 Conflict
//	INT_xxx      - 500 Internal Server Error
//	UNAVAIL_xxx  - 503 Service Unavailable
//	TIMEOUT_xxx  - 504 Gateway Timeout
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field or setting is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeAuthentication indicates a general authentication failure.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates a structurally valid token whose
	// expiry has passed.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a token that is malformed, carries
	// a bad signature, or arrived in a malformed header.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationMissing indicates no token was presented.
	CodeAuthenticationMissing Code = "AUTH_004"

	// CodeAuthenticationCredentials indicates the login credentials did not
	// match a known identity. Unknown email and wrong password share it.
	CodeAuthenticationCredentials Code = "AUTH_005"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeConflict indicates the request conflicts with the current state,
	// such as an invalid lifecycle transition.
	CodeConflict Code = "CONFLICT_001"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a credential backend query failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates invalid or incomplete configuration.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalSigning indicates a token could not be signed.
	CodeInternalSigning Code = "INT_004"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a credential backend is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a credential backend query timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_002"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
