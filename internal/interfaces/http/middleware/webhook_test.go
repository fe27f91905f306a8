package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newWebhookRouter(secret string) *gin.Engine {
	r := gin.New()
	r.POST("/webhooks/marketplace", WebhookAuth(secret, zap.NewNop()), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestWebhookAuth(t *testing.T) {
	t.Run("correct secret passes", func(t *testing.T) {
		r := newWebhookRouter("hook-secret")
		req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace", strings.NewReader("{}"))
		req.Header.Set(WebhookSecretHeader, "hook-secret")

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		r := newWebhookRouter("hook-secret")
		req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace", strings.NewReader("{}"))
		req.Header.Set(WebhookSecretHeader, "guess")

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_UNAUTHORIZED")
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		r := newWebhookRouter("hook-secret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/marketplace", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("empty configured secret rejects everything", func(t *testing.T) {
		r := newWebhookRouter("")
		req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace", nil)
		req.Header.Set(WebhookSecretHeader, "")

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
