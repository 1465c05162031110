// Package gorm routes gorm logging through the global zerolog logger.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/confstore/confstore/internal/logger"
)

// Logger implements gorm's logger.Interface on top of zerolog.
// Statements are logged at trace level, slow statements at warn and failed statements at error.
type Logger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// New creates a gorm logger from the logger config.
func New(cfg logger.Log) *Logger {
	return &Logger{
		level:         gormlogger.Info,
		slowThreshold: time.Duration(cfg.SlowQueryThreshold) * time.Millisecond,
	}
}

// LogMode returns a copy of l with level.
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	n := *l
	n.level = level

	return &n
}

// Info logs gorm info messages at debug level.
func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		log.Debug().Str("component", "gorm").Msg(fmt.Sprintf(msg, data...))
	}
}

// Warn logs gorm warnings.
func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		log.Warn().Str("component", "gorm").Msg(fmt.Sprintf(msg, data...))
	}
}

// Error logs gorm errors.
func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		log.Error().Str("component", "gorm").Msg(fmt.Sprintf(msg, data...))
	}
}

// Trace logs a single sql statement.
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		log.Error().Err(err).
			Str("component", "gorm").
			Dur("elapsed", elapsed).
			Int64("rows", rows).
			Str("sql", sql).
			Msg("sql statement failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		log.Warn().
			Str("component", "gorm").
			Dur("elapsed", elapsed).
			Dur("threshold", l.slowThreshold).
			Int64("rows", rows).
			Str("sql", sql).
			Msg("slow sql statement")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		log.Trace().
			Str("component", "gorm").
			Dur("elapsed", elapsed).
			Int64("rows", rows).
			Str("sql", sql).
			Msg("sql statement")
	}
}
