package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newAccessLogRouter(level zapcore.Level) (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(level)
	logger := zap.New(core)

	router := gin.New()
	router.Use(AccessLog(logger))
	return router, recorded
}

func TestAccessLog_SuccessfulRequest(t *testing.T) {
	router, recorded := newAccessLogRouter(zapcore.InfoLevel)
	router.GET("/api/v1/accounts", func(c *gin.Context) {
		c.Set("request_id", "req-1")
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts?limit=5", nil)
	router.ServeHTTP(w, req)

	entries := recorded.All()
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "http request", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/v1/accounts", fields["path"])
	assert.Equal(t, "limit=5", fields["query"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestAccessLog_ClientErrorLogsWarn(t *testing.T) {
	router, recorded := newAccessLogRouter(zapcore.InfoLevel)
	router.GET("/missing", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestAccessLog_ServerErrorLogsError(t *testing.T) {
	router, recorded := newAccessLogRouter(zapcore.InfoLevel)
	router.GET("/boom", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestAccessLog_StoresRequestLogger(t *testing.T) {
	router, _ := newAccessLogRouter(zapcore.InfoLevel)

	var fromContext *zap.Logger
	router.GET("/ping", func(c *gin.Context) {
		fromContext = GetGinLogger(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotNil(t, fromContext)
}

func TestRecovery_CatchesPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("unexpected state")
	})

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "panic recovered", entries[0].Message)
}

func TestGetGinLogger_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	logger := GetGinLogger(c)
	require.NotNil(t, logger)
	logger.Info("safe to use")
}
