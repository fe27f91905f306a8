package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/erp/marketsync/internal/domain/sync"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
)

// MappingHandler handles ID mapping table endpoints. Mappings are read-only
// over HTTP; they are created by the reconciliation engine and by webhook
// events only.
type MappingHandler struct {
	BaseHandler
	mappings sync.IDMappingResolver
}

// NewMappingHandler creates a new MappingHandler
func NewMappingHandler(mappings sync.IDMappingResolver) *MappingHandler {
	return &MappingHandler{mappings: mappings}
}

// List lists mappings within a scope, newest first
// GET /api/v1/mappings?scope=...&source_table=...
func (h *MappingHandler) List(c *gin.Context) {
	scope := c.Query("scope")
	if scope == "" {
		h.Error(c, 400, dto.ErrCodeValidation, "scope query parameter is required")
		return
	}

	var req dto.ListMappingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.Error(c, 400, dto.ErrCodeValidation, err.Error())
		return
	}
	req.Normalize()

	offset := (req.Page - 1) * req.PageSize
	mappings, err := h.mappings.FindByScope(c.Request.Context(), scope, req.SourceTable, req.PageSize, offset)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	// Total counts the whole scope; the table filter narrows pages only
	total, err := h.mappings.CountByScope(c.Request.Context(), scope)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, dto.NewMappingListResponse(mappings), total, req.Page, req.PageSize)
}

// Resolve looks up the internal identity of one external record
// GET /api/v1/mappings/resolve?scope=...&source_table=...&source_id=...
func (h *MappingHandler) Resolve(c *gin.Context) {
	scope := c.Query("scope")
	sourceTable := c.Query("source_table")
	sourceID := c.Query("source_id")
	if scope == "" || sourceTable == "" || sourceID == "" {
		h.Error(c, 400, dto.ErrCodeValidation, "scope, source_table and source_id query parameters are required")
		return
	}

	mapping, err := h.mappings.FindBySource(c.Request.Context(), scope, sourceTable, sourceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.NewMappingResponse(mapping))
}
