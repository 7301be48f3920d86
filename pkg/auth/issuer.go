package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// TokenIssuer signs session tokens. It performs no credential checks; the
// caller has already established the identity.
//
// TokenIssuer is safe for concurrent use.
type TokenIssuer struct {
	cfg    TokenConfig
	key    []byte
	opts   options
	tracer trace.Tracer

	// sign produces the compact serialization. Tests replace it to force
	// a signing failure.
	sign func(token *jwt.Token, key []byte) (string, error)
}

// NewTokenIssuer returns an issuer for cfg. An empty signing key is an
// error; callers treat it as fatal at startup.
func NewTokenIssuer(cfg TokenConfig, opts ...Option) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	o := newOptions(opts)

	if len(cfg.SigningKey.Value()) < recommendedKeyLen {
		o.logger.Warn("auth: signing key is shorter than recommended",
			slog.Int("recommended_bytes", recommendedKeyLen),
		)
	}

	return &TokenIssuer{
		cfg:    cfg,
		key:    []byte(cfg.SigningKey.Value()),
		opts:   o,
		tracer: o.tracer,
		sign: func(token *jwt.Token, key []byte) (string, error) {
			return token.SignedString(key)
		},
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration { return i.cfg.TTL }

// Issue signs a token binding claims for the configured TTL, starting now.
func (i *TokenIssuer) Issue(ctx context.Context, claims IdentityClaims) (string, error) {
	_, span := startSpan(ctx, i.tracer, "auth.Issue")
	defer span.End()

	if claims.Email == "" {
		err := sserr.New(sserr.CodeValidationRequired, "auth: identity email is required")
		finishSpan(span, err)
		return "", err
	}

	issuedAt := i.opts.now()
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		User: IdentityClaims{Email: claims.Email},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.cfg.TTL)),
			ID:        jti,
		},
	})

	signed, err := i.sign(token, i.key)
	if err != nil {
		wrapped := errSigningFailure(err)
		i.opts.logger.ErrorContext(ctx, "auth: token signing failed",
			slog.Any("error", wrapped),
		)
		finishSpan(span, wrapped)
		return "", wrapped
	}

	span.SetAttributes(attribute.String("auth.jti", jti))
	return signed, nil
}
