package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toruslabs/casper-provider-go/pkg/log"
)

type logEntry struct {
	level string
	msg   string
	kv    []any
}

// recordingLogger captures entries so decorator behavior can be asserted.
type recordingLogger struct {
	entries *[]logEntry
	name    string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: &[]logEntry{}}
}

func (r *recordingLogger) record(level, msg string, kv []any) {
	*r.entries = append(*r.entries, logEntry{level: level, msg: msg, kv: kv})
}

func (r *recordingLogger) Debug(msg string, kv ...any) { r.record("debug", msg, kv) }
func (r *recordingLogger) Info(msg string, kv ...any)  { r.record("info", msg, kv) }
func (r *recordingLogger) Warn(msg string, kv ...any)  { r.record("warn", msg, kv) }
func (r *recordingLogger) Error(msg string, kv ...any) { r.record("error", msg, kv) }
func (r *recordingLogger) Fatal(msg string, kv ...any) { r.record("fatal", msg, kv) }

func (r *recordingLogger) With(key string, value any) log.Logger { return r }
func (r *recordingLogger) WithName(name string) log.Logger {
	return &recordingLogger{entries: r.entries, name: name}
}
func (r *recordingLogger) Name() string                      { return r.name }
func (r *recordingLogger) AddCallerSkip(skip int) log.Logger { return r }

type spanEvent struct {
	name    string
	kv      []any
	isError bool
}

// recordingSER captures span events in place of a real tracing span.
type recordingSER struct {
	events []spanEvent
}

func (r *recordingSER) TraceID() string { return "trace-1" }
func (r *recordingSER) SpanID() string  { return "span-1" }
func (r *recordingSER) RecordEvent(name string, kv ...any) {
	r.events = append(r.events, spanEvent{name: name, kv: kv})
}
func (r *recordingSER) RecordError(name string, kv ...any) {
	r.events = append(r.events, spanEvent{name: name, kv: kv, isError: true})
}

func TestSpanLogger_RecordsEventAndLogs(t *testing.T) {
	t.Parallel()

	inner := newRecordingLogger()
	ser := &recordingSER{}
	sl := log.NewSpanLogger(inner, ser)

	sl.Info("stream attached", "channel", "provider")

	require.Len(t, ser.events, 1)
	assert.Equal(t, "stream attached", ser.events[0].name)
	assert.False(t, ser.events[0].isError)
	assert.Equal(t, []any{"level", "info", "channel", "provider"}, ser.events[0].kv)

	require.Len(t, *inner.entries, 1)
	entry := (*inner.entries)[0]
	assert.Equal(t, "info", entry.level)
	assert.Equal(t, []any{"traceId", "trace-1", "spanId", "span-1", "channel", "provider"}, entry.kv)
}

func TestSpanLogger_ErrorMarksSpan(t *testing.T) {
	t.Parallel()

	inner := newRecordingLogger()
	ser := &recordingSER{}
	sl := log.NewSpanLogger(inner, ser)

	sl.Error("write failed", "err", "closed")

	require.Len(t, ser.events, 1)
	assert.True(t, ser.events[0].isError)
}

func TestSpanLogger_NamePropagates(t *testing.T) {
	t.Parallel()

	inner := newRecordingLogger()
	ser := &recordingSER{}
	sl := log.NewSpanLogger(inner, ser).WithName("router")

	require.Equal(t, "router", sl.Name())

	sl.Warn("unknown method")
	require.Len(t, ser.events, 1)
	assert.Equal(t, []any{"level", "warn", "logger", "router"}, ser.events[0].kv)
}
