// Package tracing holds the process tracer and the span helpers the rest of
// the service calls. Until SetTracer runs, StartSpan is a pass-through.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. Called once at boot.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span under whatever span is already on ctx.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetTraceID returns the current trace id, or "" outside a recorded trace.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
