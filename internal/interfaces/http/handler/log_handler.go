package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
)

// LogHandler handles sync log endpoints
type LogHandler struct {
	BaseHandler
	logs sync.SyncLogRepository
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(logs sync.SyncLogRepository) *LogHandler {
	return &LogHandler{logs: logs}
}

// List lists recent log entries for a scope, newest first
// GET /api/v1/logs?scope=...&limit=...
func (h *LogHandler) List(c *gin.Context) {
	scope := c.Query("scope")
	if scope == "" {
		h.Error(c, 400, dto.ErrCodeValidation, "scope query parameter is required")
		return
	}

	var req dto.ListLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.Error(c, 400, dto.ErrCodeValidation, err.Error())
		return
	}
	req.Normalize()

	entries, err := h.logs.ListByScope(c.Request.Context(), scope, req.Limit)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewLogListResponse(entries))
}
