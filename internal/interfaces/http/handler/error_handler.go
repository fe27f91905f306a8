package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
)

// ErrorQueueService is the slice of the error queue the handler needs
type ErrorQueueService interface {
	Get(ctx context.Context, id uuid.UUID) (*sync.SyncError, error)
	List(ctx context.Context, scope string, filter sync.SyncErrorFilter) ([]sync.SyncError, int64, error)
	Stats(ctx context.Context, scope string) (map[sync.SyncErrorState]int64, error)
	Retry(ctx context.Context, id uuid.UUID, actor string) (*sync.SyncError, error)
	Ignore(ctx context.Context, id uuid.UUID, actor string) (*sync.SyncError, error)
	MarkResolved(ctx context.Context, id uuid.UUID, actor string) (*sync.SyncError, error)
}

// ErrorHandler handles dead letter queue endpoints
type ErrorHandler struct {
	BaseHandler
	queue ErrorQueueService
}

// NewErrorHandler creates a new ErrorHandler
func NewErrorHandler(queue ErrorQueueService) *ErrorHandler {
	return &ErrorHandler{queue: queue}
}

// List lists dead letter entries for a scope, filterable by state and kind
// GET /api/v1/errors?scope=...&state=...&kind=...&source_table=...
func (h *ErrorHandler) List(c *gin.Context) {
	scope := c.Query("scope")
	if scope == "" {
		h.Error(c, 400, dto.ErrCodeValidation, "scope query parameter is required")
		return
	}

	var req dto.ListErrorsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.Error(c, 400, dto.ErrCodeValidation, err.Error())
		return
	}

	entries, total, err := h.queue.List(c.Request.Context(), scope, req.ToFilter())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, dto.NewSyncErrorListResponse(entries), total, req.Page, req.PageSize)
}

// Get returns one dead letter entry including its stored payload
// GET /api/v1/errors/:id
func (h *ErrorHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid error id")
		return
	}

	entry, err := h.queue.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewSyncErrorResponse(entry))
}

// Stats reports per-state entry counts for a scope
// GET /api/v1/errors/stats?scope=...
func (h *ErrorHandler) Stats(c *gin.Context) {
	scope := c.Query("scope")
	if scope == "" {
		h.Error(c, 400, dto.ErrCodeValidation, "scope query parameter is required")
		return
	}

	counts, err := h.queue.Stats(c.Request.Context(), scope)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewErrorStatsResponse(scope, counts))
}

// Retry replays the stored payload through the reconciliation engine. The
// updated entry is returned even when the replay fails, so the caller sees
// the new state and classification.
// POST /api/v1/errors/:id/retry
func (h *ErrorHandler) Retry(c *gin.Context) {
	h.applyAction(c, h.queue.Retry)
}

// Ignore dismisses a pending entry
// POST /api/v1/errors/:id/ignore
func (h *ErrorHandler) Ignore(c *gin.Context) {
	h.applyAction(c, h.queue.Ignore)
}

// Resolve marks an entry resolved without replaying it
// POST /api/v1/errors/:id/resolve
func (h *ErrorHandler) Resolve(c *gin.Context) {
	h.applyAction(c, h.queue.MarkResolved)
}

// applyAction runs one operator action against an entry. Failed retries are
// not treated as HTTP errors: the entry was updated, the outcome rides along.
func (h *ErrorHandler) applyAction(c *gin.Context, action func(ctx context.Context, id uuid.UUID, actor string) (*sync.SyncError, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid error id")
		return
	}

	entry, err := action(c.Request.Context(), id, getActor(c))
	if err != nil {
		if entry == nil {
			h.HandleDomainError(c, err)
			return
		}
		code := dto.MapDomainError(err)
		resp := dto.NewErrorResponseWithRequestID(code, err.Error(), getRequestID(c))
		resp.Data = dto.NewSyncErrorResponse(entry)
		c.JSON(dto.GetHTTPStatus(code), resp)
		return
	}

	h.Success(c, dto.NewSyncErrorResponse(entry))
}
