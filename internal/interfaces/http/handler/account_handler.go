package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
)

// AccountConnector is the slice of the account service the handler needs
type AccountConnector interface {
	Connect(ctx context.Context, scope, displayName, code string) (*sync.Account, error)
	Disconnect(ctx context.Context, id uuid.UUID) (*sync.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*sync.Account, error)
	List(ctx context.Context) ([]sync.Account, error)
}

// AccountHandler handles marketplace account endpoints
type AccountHandler struct {
	BaseHandler
	accounts AccountConnector
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accounts AccountConnector) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Connect completes the OAuth handshake and creates or reactivates an account
// POST /api/v1/accounts
func (h *AccountHandler) Connect(c *gin.Context) {
	var req dto.ConnectAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	account, err := h.accounts.Connect(c.Request.Context(), req.Scope, req.DisplayName, req.Code)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, dto.NewAccountResponse(account))
}

// Disconnect deactivates an account, keeping its scope history
// POST /api/v1/accounts/:id/disconnect
func (h *AccountHandler) Disconnect(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid account id")
		return
	}

	account, err := h.accounts.Disconnect(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewAccountResponse(account))
}

// Get returns one account
// GET /api/v1/accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid account id")
		return
	}

	account, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewAccountResponse(account))
}

// List returns all accounts
// GET /api/v1/accounts
func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewAccountListResponse(accounts))
}
