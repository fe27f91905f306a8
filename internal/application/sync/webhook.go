package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// Webhook event types posted by the marketplace
const (
	EventRecordMigrated     = "record_migrated"
	EventRecordError        = "record_error"
	EventMigrationCompleted = "migration_completed"
)

// eventDedupeTTL bounds how long processed event ids are remembered
const eventDedupeTTL = 24 * time.Hour

// ErrUnknownEventType is returned for event types the processor does not handle
var ErrUnknownEventType = errors.New("sync: unknown webhook event type")

// IdempotencyStore deduplicates webhook deliveries. MarkProcessed atomically
// records an event id and reports whether it was newly seen.
type IdempotencyStore interface {
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}

// WebhookEvent is one decoded marketplace event
type WebhookEvent struct {
	// EventID is the provider's delivery id, used for deduplication
	EventID string `json:"event_id"`
	// Type is the event type
	Type string `json:"type"`
	// Scope is the account namespace the event belongs to
	Scope string `json:"scope"`
	// SourceTable is the external resource the event refers to
	SourceTable string `json:"source_table,omitempty"`
	// SourceID is the external record id the event refers to
	SourceID string `json:"source_id,omitempty"`
	// TargetType and TargetID carry the internal identity for record_migrated
	TargetType string `json:"target_type,omitempty"`
	TargetID   int64  `json:"target_id,omitempty"`
	// Kind and Message describe the failure for record_error
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
	// Payload is the raw source record for record_error, replayable later
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventProcessor acknowledges marketplace webhook events and feeds them into
// the mapping table and the dead letter queue.
type EventProcessor struct {
	accounts   sync.AccountRepository
	idmap      sync.IDMappingRepository
	queue      sync.SyncErrorRepository
	logs       sync.SyncLogRepository
	dedupe     IdempotencyStore
	maxRetries int
	log        *zap.Logger
}

// NewEventProcessor creates a new EventProcessor
func NewEventProcessor(
	accounts sync.AccountRepository,
	idmap sync.IDMappingRepository,
	queue sync.SyncErrorRepository,
	logs sync.SyncLogRepository,
	dedupe IdempotencyStore,
	maxRetries int,
	log *zap.Logger,
) *EventProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = sync.DefaultMaxRetries
	}
	return &EventProcessor{
		accounts:   accounts,
		idmap:      idmap,
		queue:      queue,
		logs:       logs,
		dedupe:     dedupe,
		maxRetries: maxRetries,
		log:        log,
	}
}

// ProcessEvent handles one webhook delivery. Redelivered events (same event
// id) are acknowledged without reprocessing.
func (p *EventProcessor) ProcessEvent(ctx context.Context, event *WebhookEvent) error {
	if event.Scope == "" {
		return sync.Classify(sync.ErrorKindValidation, "webhook event has no scope")
	}

	if event.EventID != "" && p.dedupe != nil {
		fresh, err := p.dedupe.MarkProcessed(ctx, event.EventID, eventDedupeTTL)
		if err != nil {
			// Dedupe store trouble must not drop events; process anyway
			p.log.Warn("idempotency store unavailable", zap.Error(err), zap.String("event_id", event.EventID))
		} else if !fresh {
			p.log.Debug("duplicate webhook delivery acknowledged", zap.String("event_id", event.EventID))
			return nil
		}
	}

	switch event.Type {
	case EventRecordMigrated:
		return p.handleRecordMigrated(ctx, event)
	case EventRecordError:
		return p.handleRecordError(ctx, event)
	case EventMigrationCompleted:
		return p.handleMigrationCompleted(ctx, event)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
}

// handleRecordMigrated records a mapping the provider established on its side
// and closes any pending dead letter entry for the record.
func (p *EventProcessor) handleRecordMigrated(ctx context.Context, event *WebhookEvent) error {
	mapping, err := sync.NewIDMapping(event.Scope, event.SourceTable, event.SourceID, event.TargetType, event.TargetID)
	if err != nil {
		return sync.Wrap(sync.ErrorKindValidation, "record_migrated event is incomplete", err)
	}

	if err := p.idmap.Create(ctx, mapping); err != nil && !errors.Is(err, sync.ErrDuplicateMapping) {
		return err
	}

	if entry, err := p.queue.FindPendingBySource(ctx, event.Scope, event.SourceTable, event.SourceID); err == nil {
		if err := entry.Resolve("webhook"); err == nil {
			if err := p.queue.Save(ctx, entry); err != nil {
				p.log.Warn("failed to resolve dead letter entry", zap.Error(err), zap.String("source_id", event.SourceID))
			}
		}
	}

	p.appendLog(ctx, event, sync.LogLevelInfo,
		fmt.Sprintf("record migrated externally to %s/%d", event.TargetType, event.TargetID))
	return nil
}

// handleRecordError files a provider-reported failure into the dead letter
// queue, refreshing the pending entry when the record already failed before.
func (p *EventProcessor) handleRecordError(ctx context.Context, event *WebhookEvent) error {
	if event.SourceTable == "" || event.SourceID == "" {
		return sync.Classify(sync.ErrorKindValidation, "record_error event has no source identity")
	}

	kind := sync.ErrorKind(event.Kind)
	if !kind.IsValid() {
		kind = sync.ErrorKindUnknown
	}

	if existing, err := p.queue.FindPendingBySource(ctx, event.Scope, event.SourceTable, event.SourceID); err == nil {
		existing.RefreshFailure(kind, event.Message)
		return p.queue.Save(ctx, existing)
	} else if !errors.Is(err, sync.ErrSyncErrorNotFound) {
		return err
	}

	entry, err := sync.NewSyncError(event.Scope, event.SourceTable, event.SourceID, string(event.Payload), kind, event.Message, p.maxRetries)
	if err != nil {
		return sync.Wrap(sync.ErrorKindValidation, "record_error event is incomplete", err)
	}
	if err := p.queue.Create(ctx, entry); err != nil {
		return err
	}

	p.appendLog(ctx, event, sync.LogLevelWarning,
		fmt.Sprintf("provider reported failure (%s): %s", kind, event.Message))
	return nil
}

// handleMigrationCompleted stamps the account and logs the completion
func (p *EventProcessor) handleMigrationCompleted(ctx context.Context, event *WebhookEvent) error {
	account, err := p.accounts.FindByScope(ctx, event.Scope)
	if err != nil {
		return err
	}

	account.RecordSyncPass(time.Now())
	if err := p.accounts.Save(ctx, account); err != nil {
		return err
	}

	p.appendLog(ctx, event, sync.LogLevelInfo, "provider reported migration completed")
	return nil
}

func (p *EventProcessor) appendLog(ctx context.Context, event *WebhookEvent, level sync.LogLevel, msg string) {
	entry := sync.NewSyncLog(event.Scope, level, event.SourceTable, event.SourceID, msg)
	if err := p.logs.Append(ctx, entry); err != nil {
		p.log.Warn("failed to append sync log", zap.Error(err), zap.String("scope", event.Scope))
	}
}
