package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BearerScheme is the only accepted Authorization scheme. It is matched
// case-insensitively.
const BearerScheme = "Bearer"

// Verification stages, recorded on errors and spans.
const (
	stageFormat    = "format"
	stageStructure = "structure"
	stageSignature = "signature"
	stageClaims    = "claims"
)

// TokenVerifier checks a raw Authorization header value and extracts the
// identity it carries. Checks run in a fixed order and stop at the first
// failure: presence, header format, signature and structure, expiry, claim
// extraction.
//
// TokenVerifier is safe for concurrent use.
type TokenVerifier struct {
	cfg    TokenConfig
	key    []byte
	parser *jwt.Parser
	tracer trace.Tracer
}

// NewTokenVerifier returns a verifier for cfg. An empty signing key is an
// error.
func NewTokenVerifier(cfg TokenConfig, opts ...Option) (*TokenVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	o := newOptions(opts)

	// HS256 only: a token naming any other algorithm, including "none",
	// fails the signature stage. Strict decoding rejects non-zero padding
	// bits in the last signature character, so every edit of the token text
	// is detected.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(o.now),
	)

	return &TokenVerifier{
		cfg:    cfg,
		key:    []byte(cfg.SigningKey.Value()),
		parser: parser,
		tracer: o.tracer,
	}, nil
}

// Verify checks rawHeader and returns the AuthContext of the token it
// carries. An empty rawHeader means no header was sent.
//
// Errors are *errors.Error values with one of the codes AUTH_004 (missing),
// AUTH_003 (invalid) or AUTH_002 (expired). A token that fails both its
// signature and its expiry is reported as invalid.
func (v *TokenVerifier) Verify(ctx context.Context, rawHeader string) (*AuthContext, error) {
	_, span := startSpan(ctx, v.tracer, "auth.Verify")
	defer span.End()

	ac, err := v.verify(rawHeader)
	span.SetAttributes(spanOutcome(err))
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	return ac, nil
}

func (v *TokenVerifier) verify(rawHeader string) (*AuthContext, error) {
	header := strings.TrimSpace(rawHeader)
	if header == "" {
		return nil, errMissingToken()
	}

	tokenStr, ok := splitAuthorization(header)
	if !ok {
		return nil, errInvalidToken(nil, stageFormat)
	}
	if len(tokenStr) > maxTokenSize {
		return nil, errInvalidToken(nil, stageFormat)
	}

	claims := &sessionClaims{}
	_, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	// Expiry was enforced by the parser as now < exp, both as time.Time.
	if claims.User.Email == "" {
		return nil, errInvalidToken(nil, stageClaims)
	}

	return &AuthContext{
		User:      IdentityClaims{Email: claims.User.Email},
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// splitAuthorization accepts exactly "<scheme> <token>" with a Bearer
// scheme and a non-empty token.
func splitAuthorization(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], BearerScheme) || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// classifyParseError maps a jwt parse error onto the taxonomy. The parser
// verifies the signature before any claim, so an expiry error only reaches
// this point for an authentic token. Claim errors other than expiry take
// precedence when several are joined.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errInvalidToken(err, stageStructure)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return errInvalidToken(err, stageSignature)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return errInvalidToken(err, stageClaims)
	case errors.Is(err, jwt.ErrTokenExpired):
		return errExpiredToken(err)
	default:
		return errInvalidToken(err, stageClaims)
	}
}

// spanOutcome is the value of the auth.outcome span attribute.
func spanOutcome(err error) attribute.KeyValue {
	if err == nil {
		return attribute.String("auth.outcome", "ok")
	}
	return attribute.String("auth.outcome", "rejected")
}
