package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerAdapter routes GORM output into a Logger. Statements log at trace level;
// failed and slow statements log as warnings.
type GormLoggerAdapter struct {
	log  Logger
	slow time.Duration
}

var _ gormlogger.Interface = (*GormLoggerAdapter)(nil)

// NewGormLoggerAdapter returns an adapter that warns about statements slower than
// slowThreshold. Zero disables slow statement warnings.
func NewGormLoggerAdapter(log Logger, slowThreshold time.Duration) *GormLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLoggerAdapter{log: log, slow: slowThreshold}
}

// LogMode is a no-op; the collection module's configured level applies.
func (a *GormLoggerAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface { return a }

func (a *GormLoggerAdapter) Info(_ context.Context, msg string, args ...any) {
	a.log.Debug(fmt.Sprintf(msg, args...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, args ...any) {
	a.log.Warn(fmt.Sprintf(msg, args...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, args ...any) {
	a.log.Error(fmt.Sprintf(msg, args...))
}

func (a *GormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []Field{String("sql", sql), Int64("rows_affected", rows), Duration("elapsed", elapsed)}
	log := a.log.WithContext(ctx)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Warn("query failed", append(fields, Error(err))...)
	case a.slow > 0 && elapsed > a.slow:
		log.Warn("slow query", append(fields, Duration("threshold", a.slow))...)
	default:
		log.Trace("sql query", fields...)
	}
}
