package auth

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for auth spans.
const tracerName = "github.com/StricklySoft/stricklysoft-authgate/pkg/auth"

func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span along with its error code, if any.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	if code := sserr.GetCode(err); code != "" {
		span.SetAttributes(attribute.String("auth.error_code", code.String()))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
