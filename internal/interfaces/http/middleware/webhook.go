package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/interfaces/http/dto"
)

// WebhookSecretHeader carries the shared secret the marketplace signs
// deliveries with.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookAuth verifies the shared secret on marketplace webhook deliveries.
// The comparison is constant-time. An empty configured secret rejects every
// delivery rather than accepting all of them.
func WebhookAuth(secret string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		presented := c.GetHeader(WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			log.Warn("webhook delivery rejected",
				zap.String("client_ip", c.ClientIP()),
				zap.Bool("secret_present", presented != ""),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Invalid webhook secret"))
			return
		}
		c.Next()
	}
}
