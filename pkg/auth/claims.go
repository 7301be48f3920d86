package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is a login attempt. The password is never logged or echoed.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// String redacts the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Email: %q, Password: %s}", c.Email, secretRedacted)
}

// LogValue implements [slog.LogValuer].
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", c.Email))
}

// IdentityClaims is the identity bound into a token. It holds only
// allow-listed fields; anything else present in a decoded token is dropped.
type IdentityClaims struct {
	Email string `json:"email"`
}

// sessionClaims is the token payload: the identity under "user" plus the
// registered iss, iat, exp and jti claims.
type sessionClaims struct {
	User IdentityClaims `json:"user"`
	jwt.RegisteredClaims
}

// AuthContext is the result of a successful verification. It is attached to
// the request context and lives as long as the request.
type AuthContext struct {
	User      IdentityClaims
	ExpiresAt time.Time
}

// MarshalJSON renders exp as Unix seconds, matching the token's own
// representation.
func (a AuthContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		User IdentityClaims `json:"user"`
		Exp  int64          `json:"exp"`
	}{
		User: a.User,
		Exp:  a.ExpiresAt.Unix(),
	})
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Stores and the login flow key identities by the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
