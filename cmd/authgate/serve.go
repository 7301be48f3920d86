package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/directory"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/gateway"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/lifecycle"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Configuration errors are reported before the configured
			// logger exists.
			boot := newLogger(cmd.ErrOrStderr(), slog.LevelInfo, LogFormatJSON)
			cfg, err := opts.load()
			if err != nil {
				boot.Error("invalid configuration", "error", describeConfigError(err))
				return err
			}

			logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			return a.run(cmd.Context())
		},
	}
}

// credentialWriter is implemented by the directories that can be
// provisioned from the command line.
type credentialWriter interface {
	Put(ctx context.Context, email, passwordHash string) error
	Delete(ctx context.Context, email string) (bool, error)
}

// backend is an opened credential directory.
type backend struct {
	name   string
	store  auth.CredentialStore
	writer credentialWriter
	health gateway.HealthCheck
	close  func()
}

// openDirectory connects the directory named in cfg. The Postgres schema is
// created if missing.
func openDirectory(ctx context.Context, cfg *GatewayConfig) (*backend, error) {
	switch cfg.Directory {
	case DirectoryPostgres:
		client, err := postgres.NewClient(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store := directory.NewPostgresStore(client)
		if err := store.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return &backend{name: DirectoryPostgres, store: store, writer: store, health: client.Health, close: client.Close}, nil

	case DirectoryRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		store := directory.NewRedisStore(client, cfg.RedisKey)
		return &backend{name: DirectoryRedis, store: store, writer: store, health: client.Health, close: func() { _ = client.Close() }}, nil

	default:
		return &backend{name: DirectoryStatic, store: directory.DemoStore(), close: func() {}}, nil
	}
}

// app is the wired gateway process.
type app struct {
	logger  *slog.Logger
	backend *backend
	server  *gateway.Server
	service *lifecycle.Service
}

func newApp(ctx context.Context, cfg *GatewayConfig, logger *slog.Logger) (*app, error) {
	issuer, err := auth.NewTokenIssuer(cfg.Token, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewTokenVerifier(cfg.Token, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	b, err := openDirectory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	authn, err := auth.NewAuthenticator(b.store, issuer, auth.WithLogger(logger))
	if err != nil {
		b.close()
		return nil, err
	}

	a := &app{logger: logger, backend: b}
	serverOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithHealthCheck("service", func(ctx context.Context) error { return a.service.Health(ctx) }),
		gateway.WithServiceInfo(func() lifecycle.Info { return a.service.Info() }),
	}
	if b.health != nil {
		serverOpts = append(serverOpts, gateway.WithHealthCheck(b.name, b.health))
	}
	a.server, err = gateway.New(cfg.Config, authn, verifier, serverOpts...)
	if err != nil {
		b.close()
		return nil, err
	}

	a.service, err = lifecycle.NewServiceBuilder("authgate", version).
		WithLogger(logger).
		WithOnStart(a.server.Start).
		WithOnStop(a.server.Shutdown).
		OnStateChange(func(old, new lifecycle.State) {
			logger.Info("state transition", "from", old.String(), "to", new.String())
		}).
		Build()
	if err != nil {
		b.close()
		return nil, err
	}

	logger.Info("gateway configured",
		"directory", b.name,
		"addr", cfg.ListenAddr(),
		"token_ttl", cfg.Token.TTL.String(),
	)
	return a, nil
}

// run starts the service and blocks until ctx is done or the listener
// fails, then stops it and releases the directory.
func (a *app) run(ctx context.Context) error {
	defer a.backend.close()

	if err := a.service.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err, ok := <-a.server.Errors():
		if ok && err != nil {
			a.logger.Error("server failed", "error", err)
			serveErr = sserr.Wrap(err, sserr.CodeUnavailable, "server stopped unexpectedly")
		}
	}

	return errors.Join(serveErr, a.service.Stop(context.WithoutCancel(ctx)))
}
