package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level), recorded
}

func TestGormLogger_TraceError(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO id_mappings", 0
	}, assert.AnError)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "sql error", entries[0].Message)
	assert.Equal(t, "INSERT INTO id_mappings", entries[0].ContextMap()["sql"])
}

func TestGormLogger_RecordNotFoundIsSilent(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM accounts", 0
	}, gormlogger.ErrRecordNotFound)

	assert.Empty(t, recorded.All())
}

func TestGormLogger_SlowQuery(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn)

	began := time.Now().Add(-time.Second)
	gl.Trace(context.Background(), began, func() (string, int64) {
		return "SELECT * FROM sync_errors", 42
	}, nil)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.EqualValues(t, 42, entries[0].ContextMap()["rows"])
}

func TestGormLogger_DebugQueryAtInfoLevel(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}

func TestGormLogger_SilentSkipsEverything(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT 1", 1
	}, assert.AnError)

	assert.Empty(t, recorded.All())
}

func TestGormLogger_TraceIncludesRequestID(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)

	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-77")
	gl.Trace(ctx, time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-77", entries[0].ContextMap()["request_id"])
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Warn)

	escalated := gl.LogMode(gormlogger.Info)
	require.NotNil(t, escalated)
	assert.NotSame(t, gl, escalated)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("info"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
