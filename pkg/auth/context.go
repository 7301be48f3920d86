package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type for context keys in this package.
type contextKey int

const authContextKey contextKey = iota

// ContextWithAuth returns a copy of ctx carrying ac. The middleware calls it
// after a successful verification.
func ContextWithAuth(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// AuthFromContext returns the AuthContext attached to ctx, if any. It never
// returns a nil AuthContext with true.
//
//	ac, ok := auth.AuthFromContext(r.Context())
//	if !ok {
//	    // not behind the middleware
//	}
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*AuthContext)
	if !ok || ac == nil {
		return nil, false
	}
	return ac, true
}

// MustAuthFromContext is like AuthFromContext but panics when no
// AuthContext is attached. Use it only in handlers mounted behind the
// middleware.
func MustAuthFromContext(ctx context.Context) *AuthContext {
	ac, ok := AuthFromContext(ctx)
	if !ok {
		panic("auth: no AuthContext in context; ensure the verification middleware is installed")
	}
	return ac
}

// TraceIDFromContext returns the active OpenTelemetry trace ID, if any.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
