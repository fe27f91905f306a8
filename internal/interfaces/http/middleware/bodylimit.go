package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp/marketsync/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size. Webhook
// payloads carry whole source records, so the limit should comfortably exceed
// the largest record the marketplace emits.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeBadRequest, "Request body exceeds maximum allowed size"))
			return
		}

		// Wrap the body with a limited reader for streaming requests
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
