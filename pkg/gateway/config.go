// Package gateway serves the authentication gateway over HTTP: POST /login
// issues tokens, GET /protected demonstrates a route behind
// [auth.HTTPMiddleware], and GET /healthz reports readiness.
//
// Every request passes through tracing, request ids, access logging, panic
// recovery, security headers and a per-client rate limit before reaching
// the route.
package gateway

import (
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

const (
	DefaultAddr              = ":5000"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second

	// DefaultMaxBodyBytes caps login request bodies.
	DefaultMaxBodyBytes int64 = 1 << 20

	// DefaultRateLimit is requests per minute per client.
	DefaultRateLimit = 250

	// maxTrackedClients bounds the number of per-client limiters kept.
	maxTrackedClients = 10_000
)

// Config configures the HTTP listener.
type Config struct {
	// Addr is the listen address. Port, when set, overrides it with
	// ":<Port>".
	Addr string `json:"addr" yaml:"addr" env:"ADDR" envDefault:":5000"`
	Port string `json:"port,omitempty" yaml:"port,omitempty" env:"PORT"`

	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" env:"AUTHGATE_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"AUTHGATE_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"AUTHGATE_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" env:"AUTHGATE_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"AUTHGATE_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" env:"AUTHGATE_MAX_BODY_BYTES" envDefault:"1048576"`

	// RateLimit is the number of requests per minute allowed per client.
	// Zero disables rate limiting.
	RateLimit int `json:"rate_limit" yaml:"rate_limit" env:"AUTHGATE_RATE_LIMIT" envDefault:"250"`

	// TrustProxy keys the rate limit on the first X-Forwarded-For address
	// instead of the peer address. Enable only behind a proxy that sets it.
	TrustProxy bool `json:"trust_proxy" yaml:"trust_proxy" env:"AUTHGATE_TRUST_PROXY"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Addr:              DefaultAddr,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		MaxBodyBytes:      DefaultMaxBodyBytes,
		RateLimit:         DefaultRateLimit,
	}
}

// ListenAddr returns the address to bind.
func (c Config) ListenAddr() string {
	if p := strings.TrimSpace(c.Port); p != "" {
		return ":" + strings.TrimPrefix(p, ":")
	}
	if c.Addr == "" {
		return DefaultAddr
	}
	return c.Addr
}

// Validate rejects negative limits and timeouts.
func (c Config) Validate() error {
	switch {
	case c.MaxBodyBytes < 0:
		return sserr.New(sserr.CodeValidation, "gateway: max_body_bytes must not be negative")
	case c.RateLimit < 0:
		return sserr.New(sserr.CodeValidation, "gateway: rate_limit must not be negative")
	case c.ReadHeaderTimeout < 0, c.ReadTimeout < 0, c.WriteTimeout < 0, c.IdleTimeout < 0, c.ShutdownTimeout < 0:
		return sserr.New(sserr.CodeValidation, "gateway: timeouts must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	return c
}
