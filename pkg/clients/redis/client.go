package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authgate/pkg/clients/redis"

// Cmdable is the subset of go-redis commands the client wraps. It is
// satisfied by [*redis.Client] and by test mocks.
type Cmdable interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Client is a traced Redis client. It is safe for concurrent use.
type Client struct {
	cmdable Cmdable
	config  *Config
	tracer  trace.Tracer
	dbIndex int
}

// Option configures a Client.
type Option func(*Client)

// WithTracerProvider sets the provider command spans are created from. The
// default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient validates cfg, connects and pings the server.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: Redis cannot be reached
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: invalid configuration")
	}

	ropts, err := cfg.options()
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: failed to parse connection URI")
	}

	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrapf(err, sserr.CodeUnavailableDependency, "redis: cannot reach %s", ropts.Addr)
	}

	cfg.DB = ropts.DB
	return newClient(rdb, &cfg, opts), nil
}

func (c *Config) options() (*redis.Options, error) {
	var opts *redis.Options
	if c.URI != "" {
		parsed, err := redis.ParseURL(c.URI)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			Password: c.Password.Value(),
			DB:       c.DB,
		}
		if c.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	opts.PoolSize = c.PoolSize
	opts.MinIdleConns = c.MinIdleConns
	opts.MaxRetries = c.MaxRetries
	opts.DialTimeout = c.DialTimeout
	opts.ReadTimeout = c.ReadTimeout
	opts.WriteTimeout = c.WriteTimeout
	return opts, nil
}

// NewFromClient wraps an existing Cmdable, typically a mock. cfg may be nil.
func NewFromClient(cmdable Cmdable, cfg *Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return newClient(cmdable, cfg, opts)
}

func newClient(cmdable Cmdable, cfg *Config, opts []Option) *Client {
	c := &Client{
		cmdable: cmdable,
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: cfg.DB,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HGet returns the value of field in the hash at key. found is false,
// with a nil error, when the key or field does not exist.
func (c *Client) HGet(ctx context.Context, key, field string) (value string, found bool, err error) {
	// The field is usually an email address; keep it out of the span.
	ctx, span := c.startSpan(ctx, "HGet", "HGET "+key)
	value, err = c.cmdable.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		finishSpan(span, nil)
		return "", false, nil
	}
	if err != nil {
		err = wrapError(err, "redis: hget failed")
	}
	finishSpan(span, err)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// HSet sets field to value in the hash at key and reports how many fields
// were newly created.
func (c *Client) HSet(ctx context.Context, key, field, value string) (int64, error) {
	ctx, span := c.startSpan(ctx, "HSet", "HSET "+key)
	n, err := c.cmdable.HSet(ctx, key, field, value).Result()
	if err != nil {
		err = wrapError(err, "redis: hset failed")
	}
	finishSpan(span, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// HDel removes fields from the hash at key and reports how many existed.
func (c *Client) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	ctx, span := c.startSpan(ctx, "HDel", "HDEL "+key)
	n, err := c.cmdable.HDel(ctx, key, fields...).Result()
	if err != nil {
		err = wrapError(err, "redis: hdel failed")
	}
	finishSpan(span, err)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Health pings Redis, applying [DefaultHealthTimeout] when ctx has no
// deadline. Failure is reported as [sserr.CodeUnavailableDependency].
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: health check failed")
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.cmdable.Close()
}

func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "redis."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", c.dbIndex),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.code", sserr.GetCode(err).String()))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError classifies a Redis error. A deadline or network timeout is a
// retryable [sserr.CodeTimeoutDatabase]; other network failures and a
// closed pool are [sserr.CodeUnavailableDependency]; cancellation and
// everything else is [sserr.CodeInternalDatabase].
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
		}
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, message)
	case errors.Is(err, redis.ErrClosed):
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
