package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func query(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogMode(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), gormlogger.Info, 0)
	warn, ok := l.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, l.level)
	assert.Equal(t, gormlogger.Warn, warn.level)
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("errors are logged with request id", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn, 0)
		ctx := WithRequestID(context.Background(), "req-9")

		l.Trace(ctx, time.Now(), query("INSERT INTO payments", 0), errors.New("duplicate key"))

		entries := recorded.FilterMessage("SQL error").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "req-9", entries[0].ContextMap()["request_id"])
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn, 0)

		l.Trace(context.Background(), time.Now(), query("SELECT * FROM receipts", 0), gormlogger.ErrRecordNotFound)

		assert.Zero(t, recorded.Len())
	})

	t.Run("slow queries warn", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn, time.Millisecond)

		l.Trace(context.Background(), time.Now().Add(-time.Second), query("UPDATE invoices", 3), nil)

		assert.Equal(t, 1, recorded.FilterMessage("Slow SQL").Len())
	})

	t.Run("normal queries only at info", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		NewGormLogger(zap.New(core), gormlogger.Warn, 0).Trace(context.Background(), time.Now(), query("SELECT 1", 1), nil)
		assert.Zero(t, recorded.Len())

		NewGormLogger(zap.New(core), gormlogger.Info, 0).Trace(context.Background(), time.Now(), query("SELECT 1", 1), nil)
		assert.Equal(t, 1, recorded.FilterMessage("SQL").Len())
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Silent, 0)

		l.Trace(context.Background(), time.Now(), query("SELECT 1", 1), errors.New("x"))

		assert.Zero(t, recorded.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
