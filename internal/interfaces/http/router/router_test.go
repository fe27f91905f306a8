package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "router-test-secret-with-length",
		AccessTokenExpiration: time.Hour,
		Issuer:                "marketsync-test",
	})

	engine := New(Config{
		Handlers: Handlers{
			System:   handler.NewSystemHandler(nil),
			Auth:     handler.NewAuthHandler(jwtService, "bootstrap"),
			Accounts: handler.NewAccountHandler(nil),
			Sync:     handler.NewSyncHandler(nil),
			Errors:   handler.NewErrorHandler(nil),
			Mappings: handler.NewMappingHandler(nil),
			Logs:     handler.NewLogHandler(nil),
			Webhooks: handler.NewWebhookHandler(nil),
		},
		JWTService:    jwtService,
		WebhookSecret: "hook-secret",
		CORS:          middleware.DefaultCORSConfig(),
		Logger:        zap.NewNop(),
	})
	return engine, jwtService
}

func TestRouterMountsExpectedRoutes(t *testing.T) {
	engine, _ := newTestEngine(t)

	want := map[string]string{
		"/health":                         http.MethodGet,
		"/webhooks/marketplace":           http.MethodPost,
		"/api/v1/auth/token":              http.MethodPost,
		"/api/v1/accounts":                http.MethodPost,
		"/api/v1/accounts/:id/sync":       http.MethodPost,
		"/api/v1/accounts/:id/disconnect": http.MethodPost,
		"/api/v1/errors/:id/retry":        http.MethodPost,
		"/api/v1/errors/stats":            http.MethodGet,
		"/api/v1/mappings/resolve":        http.MethodGet,
		"/api/v1/logs":                    http.MethodGet,
	}

	mounted := make(map[string]string)
	for _, route := range engine.Routes() {
		mounted[route.Path] = route.Method
	}

	for path, method := range want {
		assert.Equal(t, method, mounted[path], "route %s", path)
	}
}

func TestRouterHealthIsPublic(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouterProtectedRoutesRequireToken(t *testing.T) {
	engine, jwtService := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	issued, err := jwtService.GenerateToken("ops@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterWebhookRequiresSecret(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/marketplace", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterSecurityHeaders(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
