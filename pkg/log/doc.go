// Package log provides the structured logging layer shared by the provider
// and its subpackages.
//
// The central type is the Logger interface: leveled, key-value structured,
// and cheap to derive from. The zap-backed implementation supports console,
// logfmt, and JSON encodings selected through Config, which can be loaded
// from LOG_* environment variables. NoopLogger stands in wherever no logger
// was configured, so library code never needs nil checks.
//
// When a context carries an OpenTelemetry span, SetContextLogger upgrades
// the stored logger to a SpanLogger: every entry is then duplicated as a
// span event carrying the log level and logger name as attributes, and log
// lines gain traceId/spanId fields. Retrieval through FromContext keeps
// request-scoped loggers flowing through middlewares without an extra
// parameter on every call.
package log
