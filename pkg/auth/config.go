// Package auth implements the session token protocol of the gateway.
//
// A [TokenIssuer] signs short-lived HS256 tokens that bind an email identity.
// A [TokenVerifier] checks a raw Authorization header value through presence,
// format, signature and expiry, and yields an [AuthContext]. The
// [Authenticator] runs the login flow against a [CredentialStore], and
// [HTTPMiddleware] and the gRPC interceptors enforce verification on every
// protected request.
//
// All components are built from an immutable [TokenConfig] and hold no
// mutable state, so a single instance serves concurrent requests.
package auth

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

const (
	// DefaultTokenTTL is the lifetime of an issued token.
	DefaultTokenTTL = time.Hour

	// DefaultIssuer is the "iss" claim stamped on and required of tokens.
	DefaultIssuer = "authgate"

	// recommendedKeyLen is the HS256 key length below which a warning is
	// logged. Shorter keys are accepted.
	recommendedKeyLen = 32

	// maxTokenSize bounds the token portion of the Authorization header.
	maxTokenSize = 8192
)

// TokenConfig is the signing configuration shared by the issuer and the
// verifier. It is loaded once at startup and never modified afterwards.
type TokenConfig struct {
	// SigningKey is the HMAC secret. It must not be empty.
	SigningKey Secret `json:"-" yaml:"-" env:"JWT_PRIVATE_KEY" required:"true"`

	// TTL is the lifetime of issued tokens. Zero means DefaultTokenTTL.
	TTL time.Duration `json:"token_ttl" yaml:"token_ttl" env:"AUTHGATE_TOKEN_TTL" envDefault:"1h"`

	// Issuer is the "iss" claim. Empty means DefaultIssuer.
	Issuer string `json:"issuer" yaml:"issuer" env:"AUTHGATE_ISSUER" envDefault:"authgate"`

	// ClockSkew is the leeway applied to time-based claims during
	// verification. The default of zero makes expiry exact.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"AUTHGATE_CLOCK_SKEW" envDefault:"0s"`
}

// Validate reports a missing signing key or a negative duration.
func (c TokenConfig) Validate() error {
	if c.SigningKey.IsZero() {
		return sserr.New(sserr.CodeValidationRequired, "auth: signing key is required")
	}
	if c.TTL < 0 {
		return sserr.New(sserr.CodeValidation, "auth: token TTL must not be negative")
	}
	if c.ClockSkew < 0 {
		return sserr.New(sserr.CodeValidation, "auth: clock skew must not be negative")
	}
	return nil
}

func (c TokenConfig) withDefaults() TokenConfig {
	if c.TTL == 0 {
		c.TTL = DefaultTokenTTL
	}
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	return c
}

// options holds the collaborators shared by the constructors in this package.
type options struct {
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a [TokenIssuer], [TokenVerifier] or [Authenticator].
type Option func(*options)

// WithClock replaces time.Now. Tests use it to pin issuance and verification
// to the same instant.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets the provider spans are created from. The default
// is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
