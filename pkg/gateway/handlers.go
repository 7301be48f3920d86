package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/lifecycle"
)

// MsgProtectedWelcome is the body message of a successful /protected call.
const MsgProtectedWelcome = "Welcome to the protected endpoint"

// healthCheckTimeout bounds the whole /healthz evaluation.
const healthCheckTimeout = 3 * time.Second

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthResponse is the /healthz body. Checks maps each check name to "ok"
// or the check's failure message. Service is set when the server was built
// with [WithServiceInfo].
type HealthResponse struct {
	Success bool              `json:"success"`
	Msg     string            `json:"msg"`
	Service *lifecycle.Info   `json:"service,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, err := s.decodeCredentials(w, r)
	if err != nil {
		auth.WriteError(w, r, s.logger, err)
		return
	}

	token, err := s.authn.Login(r.Context(), creds)
	if err != nil {
		auth.WriteError(w, r, s.logger, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, auth.Response{
		Success: true,
		Msg:     auth.MsgLoginSucceeded,
		Token:   token,
	})
}

// decodeCredentials reads a JSON or urlencoded body of at most
// MaxBodyBytes. An unreadable body is reported with the same message as a
// missing field.
func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (auth.Credentials, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return auth.Credentials{}, badBody(err)
		}
		return auth.Credentials{Email: r.PostFormValue("email"), Password: r.PostFormValue("password")}, nil
	default:
		var req loginRequest
		dec := json.NewDecoder(r.Body)
		// An empty body falls through to the missing-field check.
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return auth.Credentials{}, badBody(err)
		}
		return auth.Credentials{Email: req.Email, Password: req.Password}, nil
	}
}

func badBody(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return sserr.Wrap(err, sserr.CodeValidationFormat, auth.MsgCredentialsMissing).
			WithDetail("limit", tooLarge.Limit)
	}
	return sserr.Wrap(err, sserr.CodeValidationFormat, auth.MsgCredentialsMissing)
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.AuthFromContext(r.Context())
	if !ok {
		// Only reachable if the route is mounted without the middleware.
		auth.WriteError(w, r, s.logger, sserr.New(sserr.CodeInternal, "gateway: protected route without auth context"))
		return
	}
	user := ac.User
	auth.WriteJSON(w, http.StatusOK, auth.Response{
		Success: true,
		Msg:     MsgProtectedWelcome,
		User:    &user,
		Exp:     ac.ExpiresAt.Unix(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Success: true, Msg: "ok", Checks: make(map[string]string, len(s.checks))}
	if s.serviceInfo != nil {
		info := s.serviceInfo()
		resp.Service = &info
	}
	for _, name := range slices.Sorted(maps.Keys(s.checks)) {
		if err := s.checks[name](ctx); err != nil {
			resp.Success = false
			resp.Msg = "unavailable"
			resp.Checks[name] = healthMessage(err)
			s.logger.WarnContext(ctx, "gateway: health check failed",
				"check", name, "error", err)
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusServiceUnavailable
	}
	auth.WriteJSON(w, status, resp)
}

func healthMessage(err error) string {
	if e, ok := sserr.AsError(err); ok {
		return e.Message
	}
	return "unavailable"
}
