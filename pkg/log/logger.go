package log

// Level names a logging verbosity threshold.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Logger is the structured logging interface used across the module.
// Messages carry alternating key-value pairs; implementations must be safe
// for concurrent use. Derivation methods (With, WithName, AddCallerSkip)
// return new instances and leave the receiver untouched.
type Logger interface {
	// Debug logs fine-grained diagnostics.
	Debug(msg string, keysAndValues ...any)
	// Info logs routine operational messages.
	Info(msg string, keysAndValues ...any)
	// Warn logs recoverable anomalies.
	Warn(msg string, keysAndValues ...any)
	// Error logs failures that need attention.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a terminal failure and exits the process.
	Fatal(msg string, keysAndValues ...any)

	// With returns a logger that attaches the key-value pair to every entry.
	With(key string, value any) Logger
	// WithName returns a logger scoped under name. Nested names are joined
	// with dots.
	WithName(name string) Logger
	// Name reports the joined scope name, empty when unscoped.
	Name() string
	// AddCallerSkip returns a logger that skips additional stack frames when
	// resolving the caller annotation. Decorators use it so call sites are
	// attributed to the caller, not the wrapper.
	AddCallerSkip(skip int) Logger
}

// SpanEventRecorder mirrors log entries onto a tracing span.
type SpanEventRecorder interface {
	// TraceID reports the trace identifier as a hex string.
	TraceID() string
	// SpanID reports the span identifier as a hex string.
	SpanID() string
	// RecordEvent attaches a named event with attributes to the span.
	RecordEvent(name string, keysAndValues ...any)
	// RecordError attaches a named event and marks the span as failed.
	RecordError(name string, keysAndValues ...any)
}
