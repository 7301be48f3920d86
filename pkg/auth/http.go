package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// HeaderAuthorization is the header carrying "<scheme> <token>".
const HeaderAuthorization = "Authorization"

// Response is the JSON envelope of every gateway response.
type Response struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Token   string          `json:"token,omitempty"`
	User    *IdentityClaims `json:"user,omitempty"`
	Exp     int64           `json:"exp,omitempty"`
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError writes the failure envelope for err. Server faults are logged
// with their cause; the client only sees MsgServerError.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := HTTPStatus(err)
	if sserr.IsServerError(err) {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", sserr.FromError(err)),
		)
	}
	WriteJSON(w, status, Response{Success: false, Msg: ClientMessage(err)})
}

// HTTPMiddleware returns middleware that verifies the Authorization header
// of every request. On success the AuthContext is attached to the request
// context and next is called. On failure the rejection envelope is written
// and next is not called.
//
//	mux.Handle("GET /protected", auth.HTTPMiddleware(verifier, logger)(protected))
func HTTPMiddleware(verifier *TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ac, err := verifier.Verify(ctx, r.Header.Get(HeaderAuthorization))
			if err != nil {
				attrs := []any{
					slog.String("path", r.URL.Path),
					slog.String("code", sserr.GetCode(err).String()),
				}
				if traceID, ok := TraceIDFromContext(ctx); ok {
					attrs = append(attrs, slog.String("trace_id", traceID))
				}
				logger.DebugContext(ctx, "auth: request rejected", attrs...)
				WriteError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAuth(ctx, ac)))
		})
	}
}
