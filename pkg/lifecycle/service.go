package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-authgate/pkg/lifecycle"

// StateChangeHandler observes transitions. Handlers run synchronously under
// the state lock, so they must not call back into the Service.
type StateChangeHandler func(old, new State)

// Hook runs during Start or Stop.
type Hook func(ctx context.Context) error

// Info is a snapshot of a service, served by the health endpoint.
type Info struct {
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	State     State      `json:"state"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Uptime    string     `json:"uptime,omitempty"`
}

// Service is a named unit with a validated lifecycle. Build one with
// [NewServiceBuilder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	now    func() time.Time
	tracer trace.Tracer
	logger *slog.Logger

	onStart       Hook
	onStop        Hook
	stateHandlers []StateChangeHandler
}

func (s *Service) Name() string    { return s.name }
func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot. Uptime is set only while running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		started := *s.startedAt
		info.StartedAt = &started
		info.Uptime = s.now().Sub(started).Truncate(time.Second).String()
	}
	return info
}

// Health returns nil while running and [sserr.CodeUnavailable] otherwise.
func (s *Service) Health(_ context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: %s is not running, current state is %q", s.name, state).
			WithDetail("state", string(state))
	}
	return nil
}

// SetState moves to next, returning [sserr.CodeConflict] for a transition
// the state machine does not allow. A panicking handler is logged and
// does not affect the transition.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start moves the service through Starting to Running, running OnStart in
// between. A failing hook leaves the service Failed and returns the error
// wrapped as [sserr.CodeInternal] unless it is already structured.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: starting service", "service", s.name, "version", s.version)

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "error", err)
			_ = s.SetState(StateFailed)
			return s.fail(span, hookError(err, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return s.fail(span, err)
	}
	now := s.now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service running", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop moves the service through Stopping to Stopped, running OnStop in
// between. Stopping a service that is Unknown or already terminal is a
// no-op.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if st := s.State(); st.IsTerminal() || st == StateUnknown {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	// The hook runs even if ctx is already done; it owns the shutdown
	// deadline.
	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "error", err)
			_ = s.SetState(StateFailed)
			return s.fail(span, hookError(err, "lifecycle: stop hook failed"))
		}
	}

	if err := s.SetState(StateStopped); err != nil {
		return s.fail(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func hookError(err error, msg string) error {
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	return sserr.Wrap(err, sserr.CodeInternal, msg)
}

// ServiceBuilder configures a [Service].
//
//	svc, err := lifecycle.NewServiceBuilder("authgate", version).
//	    WithLogger(logger).
//	    WithOnStart(server.Listen).
//	    WithOnStop(server.Shutdown).
//	    Build()
type ServiceBuilder struct {
	name          string
	version       string
	logger        *slog.Logger
	tp            trace.TracerProvider
	now           func() time.Time
	onStart       Hook
	onStop        Hook
	stateHandlers []StateChangeHandler
}

// NewServiceBuilder starts a builder for a service called name.
func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{name: name, version: version}
}

// WithLogger sets the logger. The default is slog.Default().
func (b *ServiceBuilder) WithLogger(logger *slog.Logger) *ServiceBuilder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the tracer provider. The default is the global
// one.
func (b *ServiceBuilder) WithTracerProvider(tp trace.TracerProvider) *ServiceBuilder {
	b.tp = tp
	return b
}

// WithClock replaces time.Now for start timestamps and uptime.
func (b *ServiceBuilder) WithClock(now func() time.Time) *ServiceBuilder {
	b.now = now
	return b
}

func (b *ServiceBuilder) WithOnStart(hook Hook) *ServiceBuilder {
	b.onStart = hook
	return b
}

func (b *ServiceBuilder) WithOnStop(hook Hook) *ServiceBuilder {
	b.onStop = hook
	return b
}

// OnStateChange adds a handler. Handlers run in registration order; nil is
// ignored.
func (b *ServiceBuilder) OnStateChange(h StateChangeHandler) *ServiceBuilder {
	if h != nil {
		b.stateHandlers = append(b.stateHandlers, h)
	}
	return b
}

// Build validates the name and returns a Service in StateUnknown.
func (b *ServiceBuilder) Build() (*Service, error) {
	name := strings.TrimSpace(b.name)
	if name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name is required")
	}
	version := strings.TrimSpace(b.version)
	if version == "" {
		version = "dev"
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := b.tp
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	return &Service{
		name:          name,
		version:       version,
		state:         StateUnknown,
		now:           now,
		tracer:        tp.Tracer(tracerName),
		logger:        logger,
		onStart:       b.onStart,
		onStop:        b.onStop,
		stateHandlers: append([]StateChangeHandler(nil), b.stateHandlers...),
	}, nil
}
