package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/sweetshop-backend/pkg/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// queryLogger routes GORM's diagnostics through the service logger. Only failed and slow
// statements are logged; a missing row is not a failure.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Info {
		q.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Error {
		q.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && took > q.slow
	if !failed && !slow && q.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	logCtx := q.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": took.Milliseconds(),
	})
	switch {
	case failed && isConstraintViolation(err) && q.level >= gormlogger.Warn:
		q.logg.Warn(q.logg.WithField(logCtx, "error", err.Error()), "query rejected by constraint")
	case failed && q.level >= gormlogger.Error:
		q.logg.Error(logCtx, "query failed", err)
	case slow && q.level >= gormlogger.Warn:
		q.logg.Warn(logCtx, "slow query")
	case q.level >= gormlogger.Info:
		q.logg.Debug(logCtx, "query")
	}
}

func isConstraintViolation(err error) bool {
	return IsUniqueViolation(err, "") || IsForeignKeyViolation(err, "") || IsCheckViolation(err, "")
}
