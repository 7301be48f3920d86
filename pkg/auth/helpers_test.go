package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// testSigningKey is a 32-byte HMAC key shared by the tests in this package.
const testSigningKey = "this-is-a-32-byte-test-signing-k"

// testNow is a whole-second instant so NumericDate truncation is a no-op.
var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func testConfig() TokenConfig {
	return TokenConfig{SigningKey: Secret(testSigningKey)}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// newTestIssuer returns an issuer whose clock is pinned to at.
func newTestIssuer(t *testing.T, at time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(testConfig(), WithClock(fixedClock(at)))
	require.NoError(t, err)
	return issuer
}

// newTestVerifier returns a verifier whose clock is pinned to at.
func newTestVerifier(t *testing.T, at time.Time) *TokenVerifier {
	t.Helper()
	verifier, err := NewTokenVerifier(testConfig(), WithClock(fixedClock(at)))
	require.NoError(t, err)
	return verifier
}

// issueTestToken issues a token for email at testNow.
func issueTestToken(t *testing.T, email string) string {
	t.Helper()
	token, err := newTestIssuer(t, testNow).Issue(t.Context(), IdentityClaims{Email: email})
	require.NoError(t, err)
	return token
}

// signTestToken signs arbitrary claims with the given method and key.
func signTestToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err, "failed to sign test token")
	return token
}

// validTestClaims returns well-formed claims issued at testNow.
func validTestClaims(email string) jwt.MapClaims {
	return jwt.MapClaims{
		"user": map[string]any{"email": email},
		"iss":  DefaultIssuer,
		"iat":  testNow.Unix(),
		"exp":  testNow.Add(DefaultTokenTTL).Unix(),
	}
}

// replacePayload swaps the payload segment of token for the JSON in
// payload, keeping the original header and signature.
func replacePayload(t *testing.T, token, payload string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(payload))
	return strings.Join(parts, ".")
}

// decodePayload returns the JSON payload segment of token.
func decodePayload(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	return string(raw)
}

// flipSignatureChar changes one character in the middle of the signature
// segment. Middle characters carry six full bits, so the decoded signature
// always changes.
func flipSignatureChar(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	mid := len(sig) / 2
	if sig[mid] == 'A' {
		sig[mid] = 'B'
	} else {
		sig[mid] = 'A'
	}
	parts[2] = string(sig)
	return strings.Join(parts, ".")
}

const base64URLAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// editSignatureChar flips the low bit of the signature character at i. On
// the last character of an HS256 signature that bit is base64 padding.
func editSignatureChar(t *testing.T, token string, i int) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	require.Less(t, i, len(sig))
	idx := strings.IndexByte(base64URLAlphabet, sig[i])
	require.GreaterOrEqual(t, idx, 0, "not a base64url character: %q", sig[i])
	sig[i] = base64URLAlphabet[idx^1]
	parts[2] = string(sig)
	return strings.Join(parts, ".")
}

func bearer(token string) string {
	return BearerScheme + " " + token
}
