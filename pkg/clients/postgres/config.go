package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// maxSQLTruncateLen bounds SQL statements recorded in spans.
const maxSQLTruncateLen = 100

const (
	DefaultHost     = "localhost"
	DefaultPort     = 5432
	DefaultDatabase = "authgate"
	DefaultUser     = "authgate"

	// DefaultMaxConns bounds the pool. Credential lookups are single-row
	// reads, so a small pool serves a busy gateway.
	DefaultMaxConns int32 = 10

	DefaultMinConns int32 = 1

	DefaultMaxConnIdleTime = 30 * time.Minute

	DefaultConnectTimeout = 10 * time.Second

	// DefaultHealthTimeout applies to Health when the caller's context has
	// no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// SSLMode is the PostgreSQL sslmode connection parameter.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// Valid reports whether m is a recognized mode.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	default:
		return false
	}
}

// Secret redacts the database password in String, GoString and
// MarshalText. Use Value to read it.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string               { return redacted }
func (s Secret) GoString() string             { return redacted }
func (s Secret) Value() string                { return string(s) }
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config is the connection configuration of the credential database. URI,
// when set, takes precedence over the structured fields.
type Config struct {
	URI      string  `json:"uri,omitempty" yaml:"uri,omitempty" env:"POSTGRES_URI"`
	Host     string  `json:"host,omitempty" yaml:"host,omitempty" env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int     `json:"port,omitempty" yaml:"port,omitempty" env:"POSTGRES_PORT" envDefault:"5432"`
	Database string  `json:"database" yaml:"database" env:"POSTGRES_DATABASE" envDefault:"authgate"`
	User     string  `json:"user" yaml:"user" env:"POSTGRES_USER" envDefault:"authgate"`
	Password Secret  `json:"-" yaml:"-" env:"POSTGRES_PASSWORD"`
	SSLMode  SSLMode `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty" env:"POSTGRES_SSLMODE"`

	MaxConns        int32         `json:"max_conns,omitempty" yaml:"max_conns,omitempty" env:"POSTGRES_MAX_CONNS"`
	MinConns        int32         `json:"min_conns,omitempty" yaml:"min_conns,omitempty" env:"POSTGRES_MIN_CONNS"`
	MaxConnIdleTime time.Duration `json:"max_conn_idle_time,omitempty" yaml:"max_conn_idle_time,omitempty" env:"POSTGRES_MAX_CONN_IDLE_TIME"`
	ConnectTimeout  time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty" env:"POSTGRES_CONNECT_TIMEOUT"`
}

// DefaultConfig returns a Config for a local database named "authgate".
func DefaultConfig() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Database:        DefaultDatabase,
		User:            DefaultUser,
		SSLMode:         SSLModePrefer,
		MaxConns:        DefaultMaxConns,
		MinConns:        DefaultMinConns,
		MaxConnIdleTime: DefaultMaxConnIdleTime,
		ConnectTimeout:  DefaultConnectTimeout,
	}
}

// Validate fills zero-valued fields with defaults and reports the first
// invalid value. With a URI set, only the URI is checked.
func (c *Config) Validate() error {
	c.applyPoolDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("postgres: config URI is invalid: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("postgres: config URI scheme %q is not postgres", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("postgres: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return errors.New("postgres: config database must not be empty")
	}
	if c.User == "" {
		return errors.New("postgres: config user must not be empty")
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModePrefer
	}
	if !c.SSLMode.Valid() {
		return fmt.Errorf("postgres: config ssl_mode %q is not valid", c.SSLMode)
	}
	if c.MinConns < 0 || c.MaxConns < c.MinConns {
		return fmt.Errorf("postgres: config max_conns (%d) must be >= min_conns (%d) >= 0", c.MaxConns, c.MinConns)
	}
	return nil
}

func (c *Config) applyPoolDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// ConnectionString returns URI if set, otherwise a postgres:// URL built
// from the structured fields. The result contains the password; do not log
// it.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLTruncateLen {
		return sql
	}
	return sql[:maxSQLTruncateLen] + "..."
}
