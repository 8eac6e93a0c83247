package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"
)

// levelTrace sits below slog.LevelDebug
const levelTrace = slog.Level(-8)

var slogLevels = map[LogLevel]slog.Level{
	LogLevelTrace: levelTrace,
	LogLevelDebug: slog.LevelDebug,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelError: slog.LevelError,
}

// toSlogLevel maps a LogLevel to slog, treating unknown values as info.
func toSlogLevel(level LogLevel) slog.Level {
	if l, ok := slogLevels[level]; ok {
		return l
	}
	return slog.LevelInfo
}

func parseLogLevel(level string) slog.Level {
	return toSlogLevel(LogLevel(level))
}

func fanOut(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return slog.NewMultiHandler(handlers...)
}

// rewriteAttr names the trace level and renders top-level timestamps in tz.
// Console output drops the timestamp since the service manager adds one.
func rewriteAttr(tz *time.Location, console bool) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if console {
				return slog.Attr{}
			}
			if a.Value.Kind() == slog.KindTime {
				return slog.String(slog.TimeKey, a.Value.Time().In(tz).Format(time.RFC3339))
			}
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= levelTrace {
				return slog.String(slog.LevelKey, "TRACE")
			}
		}
		return a
	}
}

func consoleHandler(level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level, ReplaceAttr: rewriteAttr(tz, true)})
}

func fileHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: rewriteAttr(tz, false)})
}

// NewSlogLogger returns a JSON logger writing to w, for tests and one-off tools.
// A nil writer discards output and a nil timezone means UTC.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	if tz == nil {
		tz = time.UTC
	}
	lvl := toSlogLevel(level)
	return &moduleLogger{logger: slog.New(fileHandler(w, lvl, tz)), level: lvl}
}

// moduleLogger is the Logger handed out by CentralLogger.Module.
type moduleLogger struct {
	module string
	logger *slog.Logger
	level  slog.Level
	fields []Field
}

func (m *moduleLogger) derive(module string, fields []Field) *moduleLogger {
	return &moduleLogger{module: module, logger: m.logger, level: m.level, fields: fields}
}

// Module nests name under the current module as "<parent>.<name>".
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	if m.module != "" {
		name = m.module + "." + name
	}
	return m.derive(name, slices.Clone(m.fields))
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	return m.derive(m.module, slices.Concat(m.fields, fields))
}

// WithContext adds the context's trace ID, if it carries one.
func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	if id := TraceIDFromContext(ctx); id != "" {
		return m.With(String(traceIDKey, id))
	}
	return m
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(levelTrace, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(toSlogLevel(level), msg, fields)
}

// Flush is a no-op; files belong to the CentralLogger.
func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for _, f := range m.fields {
		attrs = append(attrs, toAttr(redactField(f)))
	}
	for _, f := range fields {
		attrs = append(attrs, toAttr(redactField(f)))
	}
	m.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
