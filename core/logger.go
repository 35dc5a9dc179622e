package core

import (
	"fmt"
	"io"
	"os"

	"github.com/zbh255/bilog"
)

// Logger interface for structured logging. Implementations can provide
// custom logging behavior (e.g. integration with the caller's own
// logging stack).
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// BilogLogger adapts core.Logger onto github.com/zbh255/bilog, the
// pack's logging library (see nyan233-littlerpc/pkg/common/logger).
// bilog has no structured-field API of its own, so Fields are flattened
// into a single formatted line before dispatch.
type BilogLogger struct {
	logging bilog.Logger
}

// NewDefaultLogger creates a BilogLogger writing to stdout at PANIC
// level (bilog's "log everything" threshold — matching
// nyan233-littlerpc's default construction), with caller info and
// timestamps enabled.
func NewDefaultLogger() *BilogLogger {
	return NewBilogLogger(bilog.NewLogger(os.Stdout, bilog.PANIC,
		bilog.WithTimes(), bilog.WithCaller(1), bilog.WithLowBuffer(0), bilog.WithTopBuffer(0)))
}

// NewBilogLoggerWriter creates a BilogLogger writing to w.
func NewBilogLoggerWriter(w io.Writer) *BilogLogger {
	return NewBilogLogger(bilog.NewLogger(w, bilog.PANIC, bilog.WithTimes(), bilog.WithLowBuffer(0), bilog.WithTopBuffer(0)))
}

// NewBilogLogger wraps an already-constructed bilog.Logger.
func NewBilogLogger(l bilog.Logger) *BilogLogger {
	return &BilogLogger{logging: l}
}

func (l *BilogLogger) Debug(msg string, fields ...Field) { l.logging.Debug(format(msg, fields)) }
func (l *BilogLogger) Info(msg string, fields ...Field)  { l.logging.Info(format(msg, fields)) }
func (l *BilogLogger) Warn(msg string, fields ...Field)  { l.logging.Trace(format(msg, fields)) }
func (l *BilogLogger) Error(msg string, fields ...Field) {
	l.logging.ErrorFromString(format(msg, fields))
}

func format(msg string, fields []Field) string {
	if len(fields) == 0 {
		return msg
	}
	out := msg + " {"
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", f.Key, f.Value)
	}
	return out + "}"
}

// NoOpLogger is a logger that discards all log messages. Useful for
// tests or when logging is not desired.
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
