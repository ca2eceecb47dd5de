package log

var _ Logger = NoopLogger{}

// NoopLogger discards everything. It is the default wherever a Logger was
// not supplied, so library code can log unconditionally.
type NoopLogger struct{}

// Debug does nothing.
func (NoopLogger) Debug(msg string, keysAndValues ...any) {}

// Info does nothing.
func (NoopLogger) Info(msg string, keysAndValues ...any) {}

// Warn does nothing.
func (NoopLogger) Warn(msg string, keysAndValues ...any) {}

// Error does nothing.
func (NoopLogger) Error(msg string, keysAndValues ...any) {}

// Fatal does nothing and, unlike real implementations, does not exit.
func (NoopLogger) Fatal(msg string, keysAndValues ...any) {}

// With returns the receiver.
func (l NoopLogger) With(key string, value any) Logger { return l }

// WithName returns the receiver.
func (l NoopLogger) WithName(name string) Logger { return l }

// Name reports an empty name.
func (NoopLogger) Name() string { return "" }

// AddCallerSkip returns the receiver.
func (l NoopLogger) AddCallerSkip(skip int) Logger { return l }
