package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata"
)

// LogFilePermissions restricts log files to the service user
const LogFilePermissions = 0o600

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the process-wide logger returned by Global.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cl
}

// Global returns the logger installed by SetGlobal. Before that it returns an
// info-level console logger so packages can log during startup and in tests.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		cfg := &LoggingConfig{Timezone: "Local"}
		applyConfigDefaults(cfg)
		global = &CentralLogger{
			config: cfg,
			tz:     time.Local,
			levels: map[string]slog.Level{},
			files:  map[string]*BufferedFileWriter{},
			base:   consoleHandler(slog.LevelInfo, time.Local),
		}
	}
	return global
}

type traceIDContextKey struct{}

// WithTraceID returns a context carrying traceID for WithContext to pick up.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored by WithTraceID, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}

// mainFileKey indexes the main log file in CentralLogger.files; module names are never empty.
const mainFileKey = ""

// CentralLogger owns the log outputs and hands out module-scoped loggers.
type CentralLogger struct {
	mu     sync.RWMutex
	config *LoggingConfig
	tz     *time.Location
	levels map[string]slog.Level
	files  map[string]*BufferedFileWriter
	base   slog.Handler
}

// NewCentralLogger opens every configured output. On error nothing is left open.
func NewCentralLogger(cfg *LoggingConfig) (_ *CentralLogger, err error) {
	if cfg == nil {
		return nil, errors.New("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config: cfg,
		tz:     tz,
		levels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
		files:  make(map[string]*BufferedFileWriter),
	}
	defer func() {
		if err != nil {
			_ = cl.closeFiles()
		}
	}()

	for module, level := range cfg.ModuleLevels {
		cl.levels[module] = parseLogLevel(level)
	}

	var outputs []slog.Handler
	if cfg.Console.Enabled {
		outputs = append(outputs, consoleHandler(parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput.Enabled {
		w, err := cl.openFile(mainFileKey, cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, fileHandler(w, parseLogLevel(cfg.FileOutput.Level), tz))
	}
	if len(outputs) == 0 {
		outputs = append(outputs, consoleHandler(parseLogLevel(cfg.DefaultLevel), tz))
	}
	cl.base = fanOut(outputs)

	for module, out := range cfg.ModuleOutputs {
		if !out.Enabled {
			continue
		}
		if _, err := cl.openFile(module, out.FilePath); err != nil {
			return nil, err
		}
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return tz, nil
}

func (cl *CentralLogger) openFile(key, path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	w, err := NewBufferedFileWriter(path)
	if err != nil {
		return nil, err
	}
	cl.files[key] = w
	return w, nil
}

// Module returns a logger for name. A module with its own output writes only there
// (and to the console when ConsoleAlso is set); other modules use the shared outputs.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.levels[name]
	if !ok {
		level = parseLogLevel(cl.config.DefaultLevel)
	}

	handler := cl.base
	if out, ok := cl.config.ModuleOutputs[name]; ok && out.Enabled {
		if out.Level != "" {
			level = parseLogLevel(out.Level)
		}
		var outputs []slog.Handler
		if w := cl.files[name]; w != nil {
			outputs = append(outputs, fileHandler(w, level, cl.tz))
		}
		if out.ConsoleAlso && cl.config.Console.Enabled {
			outputs = append(outputs, consoleHandler(level, cl.tz))
		}
		if len(outputs) > 0 {
			handler = fanOut(outputs)
		}
	}

	return &moduleLogger{module: name, logger: slog.New(handler), level: level}
}

// Flush hands buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	var errs []error
	for key, w := range cl.files {
		if err := w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s log: %w", describeFile(key), err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every log file. Loggers already handed out keep
// working for console output only.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.closeFiles()
}

func (cl *CentralLogger) closeFiles() error {
	var errs []error
	for key, w := range cl.files {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s log: %w", describeFile(key), err))
		}
	}
	clear(cl.files)
	return errors.Join(errs...)
}

func describeFile(key string) string {
	if key == mainFileKey {
		return "main"
	}
	return "module " + key
}
