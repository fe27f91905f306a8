package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	appsync "github.com/erp/marketsync/internal/application/sync"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
)

// EventSink is the slice of the event processor the handler needs
type EventSink interface {
	ProcessEvent(ctx context.Context, event *appsync.WebhookEvent) error
}

// WebhookHandler handles marketplace webhook deliveries
type WebhookHandler struct {
	BaseHandler
	processor EventSink
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(processor EventSink) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Receive acknowledges one webhook delivery. Duplicate deliveries of the same
// event id return 200 without reprocessing. Unknown event types return 400 so
// the provider stops redelivering them.
// POST /webhooks/marketplace
func (h *WebhookHandler) Receive(c *gin.Context) {
	var req dto.WebhookEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, 400, dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	if err := h.processor.ProcessEvent(c.Request.Context(), req.ToEvent()); err != nil {
		if errors.Is(err, appsync.ErrUnknownEventType) {
			h.Error(c, 400, dto.ErrCodeValidation, err.Error())
			return
		}
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, gin.H{"acknowledged": true})
}
