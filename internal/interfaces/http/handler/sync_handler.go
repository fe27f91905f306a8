package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsync "github.com/erp/marketsync/internal/application/sync"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
)

// PassRunner is the slice of the orchestrator the handler needs
type PassRunner interface {
	RunAll(ctx context.Context, accountID uuid.UUID) ([]appsync.PassReport, error)
	RunPass(ctx context.Context, accountID uuid.UUID, sourceTable string) (*appsync.PassReport, error)
}

// SyncHandler handles manual sync pass endpoints
type SyncHandler struct {
	BaseHandler
	orchestrator PassRunner
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(orchestrator PassRunner) *SyncHandler {
	return &SyncHandler{orchestrator: orchestrator}
}

// StartPass runs a sync pass for an account synchronously and returns the
// reports. An empty source_table runs every declared resource in dependency
// order. An aborted run returns the reports of completed passes alongside the
// error classification.
// POST /api/v1/accounts/:id/sync
func (h *SyncHandler) StartPass(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid account id")
		return
	}

	// Body is optional; an empty body means "run everything"
	var req dto.StartPassRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Error(c, 400, dto.ErrCodeValidation, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	if req.SourceTable != "" {
		report, err := h.orchestrator.RunPass(ctx, id, req.SourceTable)
		if err != nil {
			h.HandleDomainError(c, err)
			return
		}
		h.Success(c, dto.NewPassReportResponse(report))
		return
	}

	reports, err := h.orchestrator.RunAll(ctx, id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewPassReportListResponse(reports))
}
