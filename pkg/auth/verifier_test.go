package auth

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

func TestNewTokenVerifier_EmptySecret(t *testing.T) {
	t.Parallel()
	verifier, err := NewTokenVerifier(TokenConfig{TTL: time.Hour})
	require.Error(t, err)
	assert.Nil(t, verifier)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
}

func TestVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")

	ac, err := newTestVerifier(t, testNow).Verify(t.Context(), bearer(token))
	require.NoError(t, err)
	assert.Equal(t, "test@test.com", ac.User.Email)
	assert.True(t, ac.ExpiresAt.Equal(testNow.Add(time.Hour)))
}

func TestVerify_SchemeIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	verifier := newTestVerifier(t, testNow)

	for _, scheme := range []string{"Bearer", "bearer", "BEARER"} {
		_, err := verifier.Verify(t.Context(), scheme+" "+token)
		assert.NoError(t, err, "scheme %q", scheme)
	}
}

func TestVerify_MissingToken(t *testing.T) {
	t.Parallel()
	verifier := newTestVerifier(t, testNow)

	for _, header := range []string{"", "   ", "\t"} {
		ac, err := verifier.Verify(t.Context(), header)
		assert.Nil(t, ac)
		assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationMissing), "header %q", header)
		assert.Equal(t, MsgTokenMissing, ClientMessage(err))
	}
}

func TestVerify_MalformedHeader(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	verifier := newTestVerifier(t, testNow)

	tests := []struct {
		name   string
		header string
	}{
		{"scheme only", "Bearer"},
		{"token only", token},
		{"basic scheme", "Basic " + token},
		{"extra part", "Bearer " + token + " extra"},
		{"double space", "Bearer  " + token},
		{"not a jwt", "Bearer not-a-token"},
		{"two segments", "Bearer aaa.bbb"},
		{"garbage segments", "Bearer !!!.@@@.###"},
		{"oversized", "Bearer " + strings.Repeat("a", maxTokenSize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ac, err := verifier.Verify(t.Context(), tt.header)
			assert.Nil(t, ac)
			assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationInvalid), "got %v", err)
			assert.Equal(t, MsgTokenInvalid, ClientMessage(err))
		})
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	payload := decodePayload(t, token)

	tests := []struct {
		name    string
		payload string
	}{
		{"changed email", strings.Replace(payload, "test@test.com", "admin@test.com", 1)},
		{"extended expiry", strings.Replace(payload,
			`"exp":`+itoa(testNow.Add(time.Hour).Unix()),
			`"exp":`+itoa(testNow.Add(24*time.Hour).Unix()), 1)},
	}

	verifier := newTestVerifier(t, testNow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.NotEqual(t, payload, tt.payload, "payload should have been altered")
			_, err := verifier.Verify(t.Context(), bearer(replacePayload(t, token, tt.payload)))
			assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationInvalid), "got %v", err)
		})
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")

	_, err := newTestVerifier(t, testNow).Verify(t.Context(), bearer(flipSignatureChar(t, token)))
	assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationInvalid))
}

func TestVerify_EverySignatureCharEditIsRejected(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	verifier := newTestVerifier(t, testNow)
	sig := token[strings.LastIndexByte(token, '.')+1:]
	require.Len(t, sig, 43, "HS256 signatures encode to 43 characters")

	for i := range len(sig) {
		edited := editSignatureChar(t, token, i)
		require.NotEqual(t, token, edited)
		ac, err := verifier.Verify(t.Context(), bearer(edited))
		assert.Nil(t, ac, "edit at %d accepted", i)
		assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationInvalid), "edit at %d: got %v", i, err)
	}
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	exp := testNow.Add(time.Hour)

	tests := []struct {
		name     string
		at       time.Time
		wantCode sserr.Code
	}{
		{"well before expiry", testNow, ""},
		{"one second before expiry", exp.Add(-time.Second), ""},
		{"at expiry", exp, sserr.CodeAuthenticationExpired},
		{"one second after expiry", exp.Add(time.Second), sserr.CodeAuthenticationExpired},
		{"a day after expiry", exp.Add(24 * time.Hour), sserr.CodeAuthenticationExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ac, err := newTestVerifier(t, tt.at).Verify(t.Context(), bearer(token))
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "test@test.com", ac.User.Email)
				return
			}
			assert.Nil(t, ac)
			assert.True(t, sserr.HasCode(err, tt.wantCode), "got %v", err)
			assert.Equal(t, MsgTokenExpired, ClientMessage(err))
		})
	}
}

func TestVerify_ClockSkew(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	cfg := testConfig()
	cfg.ClockSkew = 30 * time.Second

	verifier, err := NewTokenVerifier(cfg, WithClock(fixedClock(testNow.Add(time.Hour+10*time.Second))))
	require.NoError(t, err)
	_, err = verifier.Verify(t.Context(), bearer(token))
	assert.NoError(t, err)
}

func TestVerify_TamperedAndExpiredIsInvalid(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	tampered := replacePayload(t, token,
		strings.Replace(decodePayload(t, token), "test@test.com", "evil@test.com", 1))

	_, err := newTestVerifier(t, testNow.Add(48*time.Hour)).Verify(t.Context(), bearer(tampered))
	assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationInvalid), "got %v", err)
}

func TestVerify_RejectedTokens(t *testing.T) {
	t.Parallel()

	noExp := validTestClaims("a@example.com")
	delete(noExp, "exp")

	wrongIssuer := validTestClaims("a@example.com")
	wrongIssuer["iss"] = "someone-else"

	futureIssued := validTestClaims("a@example.com")
	futureIssued["iat"] = testNow.Add(10 * time.Minute).Unix()

	noEmail := validTestClaims("")

	noneToken := signTestToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType,
		validTestClaims("a@example.com"))

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", signTestToken(t, jwt.SigningMethodHS256, []byte("another-32-byte-signing-key-here"), validTestClaims("a@example.com"))},
		{"wrong algorithm", signTestToken(t, jwt.SigningMethodHS512, []byte(testSigningKey), validTestClaims("a@example.com"))},
		{"alg none", noneToken},
		{"missing exp", signTestToken(t, jwt.SigningMethodHS256, []byte(testSigningKey), noExp)},
		{"wrong issuer", signTestToken(t, jwt.SigningMethodHS256, []byte(testSigningKey), wrongIssuer)},
		{"issued in the future", signTestToken(t, jwt.SigningMethodHS256, []byte(testSigningKey), futureIssued)},
		{"empty email", signTestToken(t, jwt.SigningMethodHS256, []byte(testSigningKey), noEmail)},
	}

	verifier := newTestVerifier(t, testNow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ac, err := verifier.Verify(t.Context(), bearer(tt.token))
			assert.Nil(t, ac)
			assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationInvalid), "got %v", err)
		})
	}
}

func TestVerify_DropsUnlistedUserFields(t *testing.T) {
	t.Parallel()
	claims := validTestClaims("a@example.com")
	claims["user"] = map[string]any{
		"email":    "a@example.com",
		"password": "hunter2",
		"role":     "admin",
	}
	token := signTestToken(t, jwt.SigningMethodHS256, []byte(testSigningKey), claims)

	ac, err := newTestVerifier(t, testNow).Verify(t.Context(), bearer(token))
	require.NoError(t, err)
	assert.Equal(t, IdentityClaims{Email: "a@example.com"}, ac.User)

	out, err := json.Marshal(ac)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "role")
}

func TestVerify_Concurrent(t *testing.T) {
	t.Parallel()
	verifier := newTestVerifier(t, testNow)
	issuer := newTestIssuer(t, testNow)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := "user" + itoa(int64(i)) + "@example.com"
			token, err := issuer.Issue(context.Background(), IdentityClaims{Email: email})
			if err != nil {
				errs <- err
				return
			}
			ac, err := verifier.Verify(context.Background(), bearer(token))
			if err != nil {
				errs <- err
				return
			}
			if ac.User.Email != email {
				errs <- assert.AnError
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestVerify_RecordsSpan(t *testing.T) {
	t.Parallel()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	verifier, err := NewTokenVerifier(testConfig(), WithTracerProvider(tp), WithClock(fixedClock(testNow)))
	require.NoError(t, err)

	_, err = verifier.Verify(t.Context(), "")
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "auth.Verify", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("auth.outcome", "rejected"))
	assert.Contains(t, spans[0].Attributes, attribute.String("auth.error_code", "AUTH_004"))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
