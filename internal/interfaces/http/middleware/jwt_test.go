package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/infrastructure/config"
)

func newJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-with-enough-length",
		AccessTokenExpiration: time.Hour,
		Issuer:                "marketsync-test",
	})
}

func newProtectedRouter(svc *auth.JWTService) *gin.Engine {
	r := gin.New()
	r.Use(JWTAuthMiddleware(svc))
	r.GET("/api/v1/accounts", func(c *gin.Context) {
		c.String(http.StatusOK, GetJWTActor(c))
	})
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.POST("/webhooks/marketplace", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := newJWTService(t)
	r := newProtectedRouter(svc)

	t.Run("valid token passes and exposes the actor", func(t *testing.T) {
		issued, err := svc.GenerateToken("ops@example.com")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issued.Token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ops@example.com", w.Body.String())
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_UNAUTHORIZED")
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		req.Header.Set(AuthHeaderKey, "Basic abc123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+"not.a.token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token reports token_expired", func(t *testing.T) {
		expired := auth.NewJWTService(config.JWTConfig{
			Secret:                "test-secret-key-with-enough-length",
			AccessTokenExpiration: -time.Minute,
			Issuer:                "marketsync-test",
		})
		issued, err := expired.GenerateToken("ops@example.com")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+issued.Token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_TOKEN_EXPIRED")
	})

	t.Run("skip paths bypass authentication", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/marketplace", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("custom error callback is used", func(t *testing.T) {
		cfg := DefaultJWTConfig(svc)
		cfg.OnError = func(c *gin.Context, err error) {
			c.AbortWithStatus(http.StatusTeapot)
		}
		custom := gin.New()
		custom.Use(JWTAuthMiddlewareWithConfig(cfg))
		custom.GET("/api/v1/accounts", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		custom.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestGetJWTClaims(t *testing.T) {
	svc := newJWTService(t)
	issued, err := svc.GenerateToken("audit@example.com")
	require.NoError(t, err)

	r := gin.New()
	r.Use(JWTAuthMiddleware(svc))
	r.GET("/api/v1/whoami", func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		c.String(http.StatusOK, claims.Actor)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+issued.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "audit@example.com", w.Body.String())
}
