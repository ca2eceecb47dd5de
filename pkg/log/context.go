package log

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type loggerContextKey struct{}

// SetContextLogger stores lg in the context. When the context already
// carries a valid tracing span, the logger is wrapped in a SpanLogger so
// subsequent entries land on the span as well.
func SetContextLogger(ctx context.Context, lg Logger) context.Context {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		lg = NewSpanLogger(lg, NewOtelSpanEventRecorder(span))
	}

	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// FromContext returns the logger stored in the context, or a NoopLogger
// when none was set.
func FromContext(ctx context.Context) Logger {
	if lg, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return lg
	}

	return NoopLogger{}
}
