// Package postgres provides the PostgreSQL client backing the credential
// directory. It wraps a pgx connection pool, adds OpenTelemetry spans to
// every statement and classifies failures into structured errors.
//
// Create a client with [NewClient]:
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// For tests, inject a pgxmock pool with [NewFromPool]:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, &postgres.Config{Database: "testdb"})
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authgate/pkg/clients/postgres"

// Pool is the subset of [*pgxpool.Pool] the client uses. pgxmock pools
// satisfy it as well.
type Pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client is a traced PostgreSQL client. It is safe for concurrent use.
type Client struct {
	pool   Pool
	config *Config
	tracer trace.Tracer
	dbName string
}

// Option configures a Client.
type Option func(*Client)

// WithTracerProvider sets the provider statement spans are created from.
// The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient validates cfg, opens a connection pool and pings the server
// within cfg.ConnectTimeout.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: the database cannot be reached
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: cannot parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: cannot create pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, sserr.Wrapf(err, sserr.CodeUnavailableDependency,
			"postgres: cannot reach database %q", databaseName(&cfg))
	}

	return newClient(pool, &cfg, opts), nil
}

// NewFromPool wraps an existing pool. cfg is stored but not validated and
// may be nil.
func NewFromPool(pool Pool, cfg *Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return newClient(pool, cfg, opts)
}

func newClient(pool Pool, cfg *Config, opts []Option) *Client {
	c := &Client{
		pool:   pool,
		config: cfg,
		tracer: otel.Tracer(tracerName),
		dbName: databaseName(cfg),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// databaseName prefers the path of a configured URI over Database.
func databaseName(cfg *Config) string {
	if cfg.URI != "" {
		if u, err := url.Parse(cfg.URI); err == nil {
			return strings.TrimPrefix(u.Path, "/")
		}
	}
	return cfg.Database
}

// QueryRow runs a query returning at most one row. The error surfaces from
// Scan; classify it with [WrapError].
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, sql)
	defer span.End()
	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, sql)
	defer span.End()

	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		err = WrapError(err, "postgres: exec failed")
		recordError(span, err)
		return tag, err
	}
	span.SetAttributes(attribute.Int64("db.response.rows_affected", tag.RowsAffected()))
	span.SetStatus(codes.Ok, "")
	return tag, nil
}

// Health pings the database, applying [DefaultHealthTimeout] when ctx has
// no deadline. Failure is reported as [sserr.CodeUnavailableDependency].
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "PING")
	defer span.End()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	if err := c.pool.Ping(ctx); err != nil {
		err = sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: health check failed")
		recordError(span, err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// startSpan names the span after the statement's leading keyword, e.g.
// "postgres.SELECT".
func (c *Client) startSpan(ctx context.Context, sql string) (context.Context, trace.Span) {
	op := operationName(sql)
	return c.tracer.Start(ctx, "postgres."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.name", c.dbName),
			attribute.String("db.operation", op),
			attribute.String("db.statement", truncateSQL(sql)),
		),
	)
}

func operationName(sql string) string {
	sql = strings.TrimLeftFunc(sql, unicode.IsSpace)
	if i := strings.IndexFunc(sql, unicode.IsSpace); i > 0 {
		sql = sql[:i]
	}
	if sql == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(sql)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.code", sserr.GetCode(err).String()))
	span.SetStatus(codes.Error, err.Error())
}

// WrapError classifies a database error and returns nil for a nil err.
//
//   - deadline, cancellation or a pgconn timeout: [sserr.CodeTimeoutDatabase]
//   - connection failures, SQLSTATE classes 08 and 53, and server
//     shutdown (57P01-57P03): [sserr.CodeUnavailableDependency]
//   - anything else: [sserr.CodeInternalDatabase]
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && unavailableState(pgErr.Code) {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, message).
			WithDetail("sqlstate", pgErr.Code)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}

func unavailableState(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"):
		return true
	case code == "57P01", code == "57P02", code == "57P03":
		return true
	}
	return false
}
