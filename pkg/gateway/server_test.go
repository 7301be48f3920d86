package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"github.com/StricklySoft/stricklysoft-authgate/internal/testutil"
	"github.com/StricklySoft/stricklysoft-authgate/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/directory"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/lifecycle"
)

var testNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type failingStore struct{ err error }

func (f failingStore) Lookup(context.Context, string) (auth.CredentialRecord, bool, error) {
	return auth.CredentialRecord{}, false, f.err
}

// testEnv wires a server whose issuer and verifier clocks are independent,
// so a test can issue at one instant and verify at another.
type testEnv struct {
	issuedAt   time.Time
	verifiedAt time.Time
	store      auth.CredentialStore
	cfg        Config
	opts       []Option
}

func (e testEnv) build(t *testing.T) *Server {
	t.Helper()
	tokenCfg := auth.TokenConfig{SigningKey: auth.Secret(fixtures.SigningKey)}
	logger := testutil.DiscardLogger()

	if e.issuedAt.IsZero() {
		e.issuedAt = testNow
	}
	if e.verifiedAt.IsZero() {
		e.verifiedAt = e.issuedAt
	}
	if e.store == nil {
		store, err := directory.NewStaticStore(map[string]string{
			fixtures.DemoEmail: fixtures.DemoPassword,
		}, bcrypt.MinCost)
		require.NoError(t, err)
		e.store = store
	}
	if e.cfg == (Config{}) {
		e.cfg = DefaultConfig()
		e.cfg.RateLimit = 0
	}

	issuer, err := auth.NewTokenIssuer(tokenCfg, auth.WithClock(func() time.Time { return e.issuedAt }), auth.WithLogger(logger))
	require.NoError(t, err)
	verifier, err := auth.NewTokenVerifier(tokenCfg, auth.WithClock(func() time.Time { return e.verifiedAt }))
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(e.store, issuer, auth.WithLogger(logger))
	require.NoError(t, err)

	srv, err := New(e.cfg, authn, verifier, append([]Option{WithLogger(logger)}, e.opts...)...)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func jsonLogin(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func loginToken(t *testing.T, srv *Server) string {
	t.Helper()
	rr := serve(srv, jsonLogin(fmt.Sprintf(`{"email":%q,"password":%q}`, fixtures.DemoEmail, fixtures.DemoPassword)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.DecodeJSON[auth.Response](t, rr)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func protectedRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set(auth.HeaderAuthorization, header)
	}
	return req
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := New(DefaultConfig(), nil, nil)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RateLimit = -1
	srv := testEnv{}.build(t)
	_, err := New(cfg, srv.authn, srv.verifier)
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
}

func TestLogin_JSON(t *testing.T) {
	t.Parallel()
	srv := testEnv{}.build(t)

	rr := serve(srv, jsonLogin(`{"email":"  TEST@test.com ","password":"testpassword"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	resp := testutil.DecodeJSON[auth.Response](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, auth.MsgLoginSucceeded, resp.Msg)
	assert.Len(t, strings.Split(resp.Token, "."), 3)
}

func TestLogin_Form(t *testing.T) {
	t.Parallel()
	srv := testEnv{}.build(t)

	form := url.Values{"email": {fixtures.DemoEmail}, "password": {fixtures.DemoPassword}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := serve(srv, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, testutil.DecodeJSON[auth.Response](t, rr).Token)
}

func TestLogin_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"empty body", ``, http.StatusBadRequest, auth.MsgCredentialsMissing},
		{"missing password", `{"email":"test@test.com"}`, http.StatusBadRequest, auth.MsgCredentialsMissing},
		{"missing email", `{"password":"testpassword"}`, http.StatusBadRequest, auth.MsgCredentialsMissing},
		{"malformed json", `{"email":`, http.StatusBadRequest, auth.MsgCredentialsMissing},
		{"wrong password", `{"email":"test@test.com","password":"nope"}`, http.StatusUnauthorized, auth.MsgCredentialMismatch},
		{"unknown email", `{"email":"ghost@test.com","password":"testpassword"}`, http.StatusUnauthorized, auth.MsgCredentialMismatch},
		{"password over bcrypt limit", `{"email":"test@test.com","password":"` + strings.Repeat("p", auth.MaxPasswordBytes+1) + `"}`,
			http.StatusBadRequest, auth.MsgPasswordTooLong},
	}

	srv := testEnv{}.build(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := serve(srv, jsonLogin(tt.body))
			assert.Equal(t, tt.status, rr.Code)
			resp := testutil.DecodeJSON[auth.Response](t, rr)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Msg)
			assert.Empty(t, resp.Token)
		})
	}
}

func TestLogin_BodyTooLarge(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	cfg.MaxBodyBytes = 32
	srv := testEnv{cfg: cfg}.build(t)

	rr := serve(srv, jsonLogin(`{"email":"test@test.com","password":"`+strings.Repeat("x", 64)+`"}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, auth.MsgCredentialsMissing, testutil.DecodeJSON[auth.Response](t, rr).Msg)
}

func TestLogin_StoreFailureHidesDetail(t *testing.T) {
	t.Parallel()
	srv := testEnv{store: failingStore{err: errors.New("dial tcp 10.0.0.7:5432: connection refused")}}.build(t)

	rr := serve(srv, jsonLogin(`{"email":"test@test.com","password":"testpassword"}`))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.7")
	assert.Equal(t, auth.MsgServerError, testutil.DecodeJSON[auth.Response](t, rr).Msg)
}

func TestLogin_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv := testEnv{}.build(t)

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestProtected_ValidToken(t *testing.T) {
	t.Parallel()
	srv := testEnv{verifiedAt: testNow.Add(59 * time.Minute)}.build(t)
	token := loginToken(t, srv)

	rr := serve(srv, protectedRequest("Bearer "+token))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.DecodeJSON[auth.Response](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, MsgProtectedWelcome, resp.Msg)
	require.NotNil(t, resp.User)
	assert.Equal(t, fixtures.DemoEmail, resp.User.Email)
	assert.Equal(t, testNow.Add(auth.DefaultTokenTTL).Unix(), resp.Exp)
}

func TestProtected_Rejections(t *testing.T) {
	t.Parallel()
	fresh := testEnv{}.build(t)
	token := loginToken(t, fresh)
	expired := testEnv{verifiedAt: testNow.Add(2 * time.Hour)}.build(t)

	tests := []struct {
		name   string
		srv    *Server
		header string
		msg    string
	}{
		{"no header", fresh, "", auth.MsgTokenMissing},
		{"wrong scheme", fresh, "Basic " + token, auth.MsgTokenInvalid},
		{"garbage token", fresh, "Bearer not.a.token", auth.MsgTokenInvalid},
		{"tampered token", fresh, "Bearer " + token + "x", auth.MsgTokenInvalid},
		{"expired token", expired, "Bearer " + token, auth.MsgTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := serve(tt.srv, protectedRequest(tt.header))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			resp := testutil.DecodeJSON[auth.Response](t, rr)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Msg)
			assert.Nil(t, resp.User)
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	t.Run("all checks pass", func(t *testing.T) {
		t.Parallel()
		srv := testEnv{opts: []Option{
			WithHealthCheck("store", func(context.Context) error { return nil }),
		}}.build(t)

		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.DecodeJSON[HealthResponse](t, rr)
		assert.True(t, resp.Success)
		assert.Equal(t, map[string]string{"store": "ok"}, resp.Checks)
	})

	t.Run("service info", func(t *testing.T) {
		t.Parallel()
		info := lifecycle.Info{Name: "authgate", Version: "1.2.3", State: lifecycle.StateRunning, Uptime: "5s"}
		srv := testEnv{opts: []Option{
			WithServiceInfo(func() lifecycle.Info { return info }),
		}}.build(t)

		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.DecodeJSON[HealthResponse](t, rr)
		require.NotNil(t, resp.Service)
		assert.Equal(t, info, *resp.Service)
	})

	t.Run("failing check", func(t *testing.T) {
		t.Parallel()
		srv := testEnv{opts: []Option{
			WithHealthCheck("service", func(context.Context) error { return nil }),
			WithHealthCheck("store", func(context.Context) error {
				return sserr.New(sserr.CodeUnavailableDependency, "postgres: health check failed")
			}),
			WithHealthCheck("ignored", nil),
		}}.build(t)

		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		resp := testutil.DecodeJSON[HealthResponse](t, rr)
		assert.False(t, resp.Success)
		assert.Equal(t, map[string]string{
			"service": "ok",
			"store":   "postgres: health check failed",
		}, resp.Checks)
	})
}

func TestHandler_Chain(t *testing.T) {
	t.Parallel()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	srv := testEnv{opts: []Option{WithTracerProvider(tp)}}.build(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "req-1234")
	rr := serve(srv, req)

	assert.Equal(t, "req-1234", rr.Header().Get(HeaderRequestID))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /healthz", spans[0].Name())
}

func TestHandler_RateLimit(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RateLimit = 2
	srv := testEnv{cfg: cfg}.build(t)

	for range 2 {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, MsgTooManyRequests, testutil.DecodeJSON[auth.Response](t, rr).Msg)
}

func TestServer_StartShutdown(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	cfg.Addr = "127.0.0.1:0"
	srv := testEnv{cfg: cfg}.build(t)

	assert.Empty(t, srv.Addr())
	assert.Nil(t, srv.Errors())
	require.NoError(t, srv.Shutdown(t.Context()))

	require.NoError(t, srv.Start(t.Context()))
	err := srv.Start(t.Context())
	assert.True(t, sserr.IsConflict(err), "got %v", err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	errs := srv.Errors()
	require.NoError(t, srv.Shutdown(t.Context()))
	_, open := <-errs
	assert.False(t, open)
	assert.Empty(t, srv.Addr())
}

func TestServer_ListenAndServe(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := testEnv{cfg: cfg}.build(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}

func TestServer_StartBindFailure(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	first := testEnv{cfg: cfg}.build(t)
	require.NoError(t, first.Start(t.Context()))
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg.Addr = first.Addr()
	second := testEnv{cfg: cfg}.build(t)
	err := second.Start(t.Context())
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailable)
}
