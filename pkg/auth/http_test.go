package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestHTTPMiddleware_ValidToken(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")
	middleware := HTTPMiddleware(newTestVerifier(t, testNow), discardLogger)

	var captured *AuthContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = MustAuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderAuthorization, bearer(token))
	rr := httptest.NewRecorder()
	middleware(inner).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "test@test.com", captured.User.Email)
	assert.True(t, testNow.Add(time.Hour).Equal(captured.ExpiresAt))
}

func TestHTTPMiddleware_Rejections(t *testing.T) {
	t.Parallel()
	token := issueTestToken(t, "test@test.com")

	tests := []struct {
		name    string
		header  string
		at      time.Time
		wantMsg string
	}{
		{"missing header", "", testNow, MsgTokenMissing},
		{"non-bearer scheme", "Basic dXNlcjpwYXNz", testNow, MsgTokenInvalid},
		{"garbage token", "Bearer garbage", testNow, MsgTokenInvalid},
		{"tampered signature", bearer(flipSignatureChar(t, token)), testNow, MsgTokenInvalid},
		{"expired", bearer(token), testNow.Add(2 * time.Hour), MsgTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("downstream handler must not run for a rejected request")
			})

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set(HeaderAuthorization, tt.header)
			}
			rr := httptest.NewRecorder()
			HTTPMiddleware(newTestVerifier(t, tt.at), discardLogger)(inner).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
			resp := decodeResponse(t, rr)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMsg, resp.Msg)
		})
	}
}

func TestWriteError_HidesServerDetail(t *testing.T) {
	t.Parallel()
	err := sserr.Wrap(errors.New("pq: relation gateway_users does not exist"), sserr.CodeInternalDatabase, "lookup failed")

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rr := httptest.NewRecorder()
	WriteError(rr, req, discardLogger, err)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "gateway_users")
	assert.NotContains(t, rr.Body.String(), "lookup failed")
	assert.Equal(t, MsgServerError, decodeResponse(t, rr).Msg)
}

func TestWriteError_PlainErrorIsServerFault(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	WriteError(rr, req, discardLogger, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgServerError, decodeResponse(t, rr).Msg)
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusOK, Response{Success: true, Msg: MsgLoginSucceeded, Token: "abc"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"success":true,"msg":"Login Succeeded","token":"abc"}`, rr.Body.String())
}
