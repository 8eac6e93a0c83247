package logger

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/labstack/gommon/log"
)

// EchoAdapter routes Echo's internal logging (startup errors, binder warnings, Recover
// output) through a Logger so the HTTP server writes one log format.
//
//	e := echo.New()
//	e.Logger = logger.NewEchoAdapter(serverLog.Module("echo"))
type EchoAdapter struct {
	log   Logger
	level atomic.Uint32 // log.Lvl; records below it are dropped before reaching log
}

// NewEchoAdapter wraps l; a nil l logs to the global logger under "echo".
func NewEchoAdapter(l Logger) *EchoAdapter {
	if l == nil {
		l = Global().Module("echo")
	}
	a := &EchoAdapter{log: l}
	a.level.Store(uint32(log.DEBUG))
	return a
}

// Output, prefix and header are owned by the wrapped Logger; the setters are ignored.
func (a *EchoAdapter) Output() io.Writer      { return io.Discard }
func (a *EchoAdapter) SetOutput(io.Writer)    {}
func (a *EchoAdapter) Prefix() string         { return "" }
func (a *EchoAdapter) SetPrefix(string)       {}
func (a *EchoAdapter) SetHeader(string)       {}
func (a *EchoAdapter) Level() log.Lvl         { return log.Lvl(a.level.Load()) }
func (a *EchoAdapter) SetLevel(level log.Lvl) { a.level.Store(uint32(level)) }

func (a *EchoAdapter) enabled(level log.Lvl) bool {
	return level >= a.Level()
}

func (a *EchoAdapter) emit(level log.Lvl, msg string, fields ...Field) {
	if !a.enabled(level) {
		return
	}
	switch level {
	case log.DEBUG:
		a.log.Debug(msg, fields...)
	case log.WARN:
		a.log.Warn(msg, fields...)
	case log.ERROR:
		a.log.Error(msg, fields...)
	default:
		a.log.Info(msg, fields...)
	}
}

// jsonFields flattens j into fields in key order.
func jsonFields(j log.JSON) []Field {
	fields := make([]Field, 0, len(j))
	for _, k := range slices.Sorted(maps.Keys(j)) {
		fields = append(fields, Field{Key: k, Value: j[k]})
	}
	return fields
}

func (a *EchoAdapter) Print(i ...any)            { a.emit(log.INFO, fmt.Sprint(i...)) }
func (a *EchoAdapter) Printf(f string, v ...any) { a.emit(log.INFO, fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Printj(j log.JSON)         { a.emit(log.INFO, "echo", jsonFields(j)...) }

func (a *EchoAdapter) Debug(i ...any)            { a.emit(log.DEBUG, fmt.Sprint(i...)) }
func (a *EchoAdapter) Debugf(f string, v ...any) { a.emit(log.DEBUG, fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Debugj(j log.JSON)         { a.emit(log.DEBUG, "echo", jsonFields(j)...) }

func (a *EchoAdapter) Info(i ...any)            { a.emit(log.INFO, fmt.Sprint(i...)) }
func (a *EchoAdapter) Infof(f string, v ...any) { a.emit(log.INFO, fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Infoj(j log.JSON)         { a.emit(log.INFO, "echo", jsonFields(j)...) }

func (a *EchoAdapter) Warn(i ...any)            { a.emit(log.WARN, fmt.Sprint(i...)) }
func (a *EchoAdapter) Warnf(f string, v ...any) { a.emit(log.WARN, fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Warnj(j log.JSON)         { a.emit(log.WARN, "echo", jsonFields(j)...) }

func (a *EchoAdapter) Error(i ...any)            { a.emit(log.ERROR, fmt.Sprint(i...)) }
func (a *EchoAdapter) Errorf(f string, v ...any) { a.emit(log.ERROR, fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Errorj(j log.JSON)         { a.emit(log.ERROR, "echo", jsonFields(j)...) }

// Fatal and Panic variants log at error level and panic; the server's Recover middleware
// or the caller decides whether the process ends.
func (a *EchoAdapter) Fatal(i ...any)            { a.fail(fmt.Sprint(i...)) }
func (a *EchoAdapter) Fatalf(f string, v ...any) { a.fail(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Fatalj(j log.JSON)         { a.fail("echo", jsonFields(j)...) }

func (a *EchoAdapter) Panic(i ...any)            { a.fail(fmt.Sprint(i...)) }
func (a *EchoAdapter) Panicf(f string, v ...any) { a.fail(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Panicj(j log.JSON)         { a.fail("echo", jsonFields(j)...) }

func (a *EchoAdapter) fail(msg string, fields ...Field) {
	a.log.Error(msg, fields...)
	panic(msg)
}
