package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-authgate/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authgate/pkg/lifecycle"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider sets the provider for HTTP server spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tp = tp
		}
	}
}

// WithHealthCheck adds a named check to /healthz. Adding a name twice
// replaces the earlier check.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// WithServiceInfo reports the owning service's name, version, state and
// uptime in the /healthz body.
func WithServiceInfo(info func() lifecycle.Info) Option {
	return func(s *Server) {
		s.serviceInfo = info
	}
}

// Server is the gateway HTTP server. Start and Shutdown may be called again
// after a shutdown to restart it.
type Server struct {
	cfg      Config
	authn    *auth.Authenticator
	verifier *auth.TokenVerifier
	logger   *slog.Logger
	tp       trace.TracerProvider
	checks   map[string]HealthCheck
	handler  http.Handler

	serviceInfo func() lifecycle.Info

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	errs     chan error
}

// New builds a Server routing /login to authn and guarding /protected with
// verifier.
func New(cfg Config, authn *auth.Authenticator, verifier *auth.TokenVerifier, opts ...Option) (*Server, error) {
	if authn == nil || verifier == nil {
		return nil, sserr.New(sserr.CodeValidationRequired, "gateway: authenticator and verifier are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg.withDefaults(),
		authn:    authn,
		verifier: verifier,
		logger:   slog.Default(),
		tp:       otel.GetTracerProvider(),
		checks:   make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	handler, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.handler = handler
	return s, nil
}

func (s *Server) routes() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.Handle("GET /protected", auth.HTTPMiddleware(s.verifier, s.logger)(http.HandlerFunc(s.handleProtected)))
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	var h http.Handler = mux
	if s.cfg.RateLimit > 0 {
		limiter, err := newClientLimiter(s.cfg.RateLimit, s.cfg.TrustProxy, maxTrackedClients)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "gateway: rate limiter")
		}
		h = limiter.middleware(h)
	}
	h = securityHeaders(h)
	h = recoverer(s.logger)(h)
	h = accessLog(s.logger)(h)
	h = requestID(h)
	h = otelhttp.NewHandler(h, "authgate",
		otelhttp.WithTracerProvider(s.tp),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return h, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listen address and serves in the background. Errors that
// stop the server after Start returns are delivered on Errors.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return sserr.New(sserr.CodeConflict, "gateway: server already started")
	}

	addr := s.cfg.ListenAddr()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeUnavailable, "gateway: cannot listen on %s", addr)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	errs := make(chan error, 1)
	s.srv, s.listener, s.errs = srv, ln, errs

	go func() {
		defer close(errs)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	s.logger.InfoContext(ctx, "gateway: listening", "addr", ln.Addr().String())
	return nil
}

// Errors delivers a fatal serve error and is closed when serving ends. It
// is nil before Start.
func (s *Server) Errors() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.listener = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return sserr.Wrap(err, sserr.CodeTimeout, "gateway: graceful shutdown did not complete")
	}
	s.logger.InfoContext(ctx, "gateway: stopped")
	return nil
}

// ListenAndServe runs the server until ctx is done or serving fails, then
// shuts it down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	errs := s.Errors()

	select {
	case <-ctx.Done():
		return s.Shutdown(ctx)
	case err, ok := <-errs:
		_ = s.Shutdown(ctx)
		if ok && err != nil {
			return sserr.Wrap(err, sserr.CodeUnavailable, "gateway: server stopped unexpectedly")
		}
		return nil
	}
}
