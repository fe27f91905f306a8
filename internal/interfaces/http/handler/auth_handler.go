package handler

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
)

// AuthHandler issues operator API tokens. There is no user store; operators
// authenticate with the shared bootstrap secret and receive a short-lived
// token carrying their identity for audit fields.
type AuthHandler struct {
	BaseHandler
	jwtService      *auth.JWTService
	bootstrapSecret string
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(jwtService *auth.JWTService, bootstrapSecret string) *AuthHandler {
	return &AuthHandler{jwtService: jwtService, bootstrapSecret: bootstrapSecret}
}

// IssueToken exchanges the bootstrap secret for an operator token
// POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if h.bootstrapSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.bootstrapSecret)) != 1 {
		h.Unauthorized(c, "Invalid credentials")
		return
	}

	issued, err := h.jwtService.GenerateToken(req.Actor)
	if err != nil {
		h.InternalError(c, "Failed to issue token")
		return
	}

	h.Success(c, dto.TokenResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}
