package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/config"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/directory"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/gateway"
)

// Credential directory backends.
const (
	DirectoryStatic   = "static"
	DirectoryPostgres = "postgres"
	DirectoryRedis    = "redis"
)

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// GatewayConfig is everything the binary reads at startup. Listener
// settings sit at the top level of the file; the signing key only comes
// from JWT_PRIVATE_KEY.
type GatewayConfig struct {
	gateway.Config `yaml:",inline"`

	Token auth.TokenConfig `json:"token" yaml:"token"`

	Directory string `json:"directory" yaml:"directory" env:"AUTHGATE_DIRECTORY" envDefault:"static"`

	Postgres postgres.Config `json:"postgres" yaml:"postgres"`
	Redis    redis.Config    `json:"redis" yaml:"redis"`

	// RedisKey is the hash holding email -> bcrypt hash.
	RedisKey string `json:"redis_key" yaml:"redis_key" env:"AUTHGATE_REDIS_KEY" envDefault:"authgate:credentials"`

	LogLevel  slog.Level `json:"log_level" yaml:"log_level" env:"AUTHGATE_LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `json:"log_format" yaml:"log_format" env:"AUTHGATE_LOG_FORMAT" envDefault:"json"`
}

// Validate checks the sections the selected directory actually uses.
func (c *GatewayConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if err := c.Token.Validate(); err != nil {
		return err
	}

	switch c.LogFormat {
	case LogFormatJSON, LogFormatText:
	default:
		return sserr.Newf(sserr.CodeValidation, "config: log_format must be %q or %q, got %q",
			LogFormatJSON, LogFormatText, c.LogFormat)
	}

	switch c.Directory = strings.ToLower(strings.TrimSpace(c.Directory)); c.Directory {
	case DirectoryStatic:
	case DirectoryPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "config: invalid postgres section")
		}
	case DirectoryRedis:
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "config: invalid redis section")
		}
		if c.RedisKey == "" {
			c.RedisKey = directory.DefaultCredentialsKey
		}
	default:
		return sserr.Newf(sserr.CodeValidation, "config: directory must be one of static, postgres, redis; got %q", c.Directory)
	}
	return nil
}

// loadConfig resolves defaults, the optional file at path and the
// environment. A missing JWT_PRIVATE_KEY fails here with VAL_002.
func loadConfig(path string, lookup func(string) (string, bool)) (*GatewayConfig, error) {
	var cfg GatewayConfig
	loader := config.New().WithLookupEnv(lookup)
	if path != "" {
		loader = loader.WithFile(path)
	}
	if err := loader.Load(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == LogFormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// describeConfigError names the variable to set when a required field is
// missing.
func describeConfigError(err error) string {
	if e, ok := sserr.AsError(err); ok && e.Code == sserr.CodeValidationRequired {
		if env, ok := e.Details["env"]; ok {
			return fmt.Sprintf("%s is not set", env)
		}
	}
	return err.Error()
}
