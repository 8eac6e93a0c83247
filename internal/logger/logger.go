// Package logger routes structured log records from every package through one
// configured set of slog handlers.
//
//	log := logger.Global().Module("ebird")
//	log.Info("registry fetched", logger.String("region", region), logger.Int("species", n))
//
// The console gets text and log files get JSON. Levels can be set per module, and a
// module may write to a file of its own. A trace id placed in a context with WithTraceID
// is added by WithContext, so one identification run can be followed across packages.
package logger

import (
	"context"
	"time"
)

// LogLevel is a severity name as written in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const (
	errorKey   = "error"
	moduleKey  = "module"
	traceIDKey = "trace_id"
)

// Field is one key/value pair attached to a record.
type Field struct {
	Key   string
	Value any
}

// Logger is passed to components instead of a concrete handler.
type Logger interface {
	// Module narrows the logger to a named module; levels and outputs are looked up by that name.
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Flush() error
}

func String(key, value string) Field { return Field{key, value} }

func Int(key string, value int) Field { return Field{key, value} }

func Int64(key string, value int64) Field { return Field{key, value} }

func Bool(key string, value bool) Field { return Field{key, value} }

// Duration is written rounded to the millisecond, e.g. "1.503s".
func Duration(key string, value time.Duration) Field { return Field{key, value} }

// Error stores err's message under "error". A nil err stores nil.
func Error(err error) Field {
	if err == nil {
		return Field{errorKey, nil}
	}
	return Field{errorKey, err.Error()}
}
