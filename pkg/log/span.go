package log

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ Logger            = &SpanLogger{}
	_ SpanEventRecorder = &OtelSpanEventRecorder{}
)

// SpanLogger decorates a Logger so that every entry is also recorded as an
// event on a tracing span, and every log line carries the trace and span
// identifiers. Error and Fatal entries additionally mark the span failed.
type SpanLogger struct {
	lg  Logger
	ser SpanEventRecorder
}

// NewSpanLogger wraps lg with span recording through ser.
func NewSpanLogger(lg Logger, ser SpanEventRecorder) *SpanLogger {
	return &SpanLogger{
		lg:  lg.AddCallerSkip(1),
		ser: ser,
	}
}

// Debug records a span event and logs at debug level.
func (sl *SpanLogger) Debug(msg string, keysAndValues ...any) {
	sl.ser.RecordEvent(msg, sl.eventKV(LevelDebug, keysAndValues)...)
	sl.lg.Debug(msg, sl.traceKV(keysAndValues)...)
}

// Info records a span event and logs at info level.
func (sl *SpanLogger) Info(msg string, keysAndValues ...any) {
	sl.ser.RecordEvent(msg, sl.eventKV(LevelInfo, keysAndValues)...)
	sl.lg.Info(msg, sl.traceKV(keysAndValues)...)
}

// Warn records a span event and logs at warn level.
func (sl *SpanLogger) Warn(msg string, keysAndValues ...any) {
	sl.ser.RecordEvent(msg, sl.eventKV(LevelWarn, keysAndValues)...)
	sl.lg.Warn(msg, sl.traceKV(keysAndValues)...)
}

// Error records an error span event and logs at error level.
func (sl *SpanLogger) Error(msg string, keysAndValues ...any) {
	sl.ser.RecordError(msg, sl.eventKV(LevelError, keysAndValues)...)
	sl.lg.Error(msg, sl.traceKV(keysAndValues)...)
}

// Fatal records an error span event and logs at fatal level.
func (sl *SpanLogger) Fatal(msg string, keysAndValues ...any) {
	sl.ser.RecordError(msg, sl.eventKV(LevelFatal, keysAndValues)...)
	sl.lg.Fatal(msg, sl.traceKV(keysAndValues)...)
}

// With returns a SpanLogger whose underlying logger carries the pair.
func (sl *SpanLogger) With(key string, value any) Logger {
	return &SpanLogger{lg: sl.lg.With(key, value), ser: sl.ser}
}

// WithName returns a SpanLogger scoped under name.
func (sl *SpanLogger) WithName(name string) Logger {
	return &SpanLogger{lg: sl.lg.WithName(name), ser: sl.ser}
}

// Name reports the underlying logger's scope name.
func (sl *SpanLogger) Name() string {
	return sl.lg.Name()
}

// AddCallerSkip returns a SpanLogger skipping additional caller frames.
func (sl *SpanLogger) AddCallerSkip(skip int) Logger {
	return &SpanLogger{lg: sl.lg.AddCallerSkip(skip), ser: sl.ser}
}

func (sl *SpanLogger) eventKV(level Level, keysAndValues []any) []any {
	kv := []any{"level", string(level)}
	if name := sl.lg.Name(); name != "" {
		kv = append(kv, "logger", name)
	}
	return append(kv, keysAndValues...)
}

func (sl *SpanLogger) traceKV(keysAndValues []any) []any {
	kv := []any{"traceId", sl.ser.TraceID(), "spanId", sl.ser.SpanID()}
	return append(kv, keysAndValues...)
}

const (
	// Appended when a key arrives without a value.
	missingAttrValue = "MISSING"
	// Used as the key for the remaining pairs when a non-string key shows up.
	invalidAttrKey = "invalidKeysAndValues"
)

// OtelSpanEventRecorder records log entries as events on an OpenTelemetry
// span, translating key-value pairs into span attributes.
type OtelSpanEventRecorder struct {
	span trace.Span
}

// NewOtelSpanEventRecorder records events onto span.
func NewOtelSpanEventRecorder(span trace.Span) *OtelSpanEventRecorder {
	return &OtelSpanEventRecorder{span: span}
}

// TraceID reports the span's trace identifier.
func (ser *OtelSpanEventRecorder) TraceID() string {
	return ser.span.SpanContext().TraceID().String()
}

// SpanID reports the span's identifier.
func (ser *OtelSpanEventRecorder) SpanID() string {
	return ser.span.SpanContext().SpanID().String()
}

// RecordEvent adds a named event with the given attributes to the span.
func (ser *OtelSpanEventRecorder) RecordEvent(name string, keysAndValues ...any) {
	ser.span.AddEvent(name, trace.WithAttributes(toOtelAttributes(keysAndValues)...))
}

// RecordError adds a named event to the span and sets its status to error.
func (ser *OtelSpanEventRecorder) RecordError(name string, keysAndValues ...any) {
	ser.span.AddEvent(name, trace.WithAttributes(toOtelAttributes(keysAndValues)...))
	ser.span.SetStatus(codes.Error, name)
}

func toOtelAttributes(keysAndValues []any) []attribute.KeyValue {
	if len(keysAndValues)%2 != 0 {
		keysAndValues = append(keysAndValues, missingAttrValue)
	}

	attrs := make([]attribute.KeyValue, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			attrs = append(attrs, attribute.String(invalidAttrKey, fmt.Sprint(keysAndValues[i:])))
			break
		}

		switch v := keysAndValues[i+1].(type) {
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int8:
			attrs = append(attrs, attribute.Int64(key, int64(v)))
		case int16:
			attrs = append(attrs, attribute.Int64(key, int64(v)))
		case int32:
			attrs = append(attrs, attribute.Int64(key, int64(v)))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case uint8:
			attrs = append(attrs, attribute.Int64(key, int64(v)))
		case uint16:
			attrs = append(attrs, attribute.Int64(key, int64(v)))
		case uint32:
			attrs = append(attrs, attribute.Int64(key, int64(v)))
		case float32:
			attrs = append(attrs, attribute.Float64(key, float64(v)))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(key, v.String()))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		}
	}

	return attrs
}
