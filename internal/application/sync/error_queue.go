package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// ErrorQueue drives the dead letter workflow: retrying stored payloads through
// the reconciler and applying operator decisions (ignore, resolve).
type ErrorQueue struct {
	entries    sync.SyncErrorRepository
	reconciler *Reconciler
	logs       sync.SyncLogRepository
	log        *zap.Logger
}

// NewErrorQueue creates a new ErrorQueue service
func NewErrorQueue(entries sync.SyncErrorRepository, reconciler *Reconciler, logs sync.SyncLogRepository, log *zap.Logger) *ErrorQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &ErrorQueue{
		entries:    entries,
		reconciler: reconciler,
		logs:       logs,
		log:        log,
	}
}

// Get returns one dead letter entry
func (q *ErrorQueue) Get(ctx context.Context, id uuid.UUID) (*sync.SyncError, error) {
	return q.entries.FindByID(ctx, id)
}

// List lists dead letter entries within a scope
func (q *ErrorQueue) List(ctx context.Context, scope string, filter sync.SyncErrorFilter) ([]sync.SyncError, int64, error) {
	return q.entries.List(ctx, scope, filter)
}

// Stats returns per-state entry counts for a scope
func (q *ErrorQueue) Stats(ctx context.Context, scope string) (map[sync.SyncErrorState]int64, error) {
	return q.entries.CountByState(ctx, scope)
}

// Retry replays the stored payload through the reconciler. It fails fast with
// ErrRetryLimitExceeded once the cap is reached. On a successful replay the
// entry resolves; on failure it returns to pending with the new classification
// and the reconciliation error is surfaced alongside the updated entry.
func (q *ErrorQueue) Retry(ctx context.Context, id uuid.UUID, actor string) (*sync.SyncError, error) {
	entry, err := q.entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := entry.BeginRetry(); err != nil {
		return entry, err
	}
	// Persist the retrying state before touching the target, so a crash
	// mid-replay is visible in the queue.
	if err := q.entries.Save(ctx, entry); err != nil {
		return entry, err
	}

	var record sync.SourceRecord
	if err := json.Unmarshal([]byte(entry.Payload), &record); err != nil {
		return q.failRetry(ctx, entry, sync.Wrap(sync.ErrorKindTransform, "stored payload is not valid JSON", err))
	}

	if _, err := q.reconciler.TransformAndInsert(ctx, entry.Scope, entry.SourceTable, record); err != nil {
		return q.failRetry(ctx, entry, err)
	}

	if err := entry.CompleteRetry(actor); err != nil {
		return entry, err
	}
	if err := q.entries.Save(ctx, entry); err != nil {
		return entry, err
	}

	q.appendLog(ctx, entry, sync.LogLevelInfo,
		fmt.Sprintf("retry %d/%d succeeded, entry resolved by %s", entry.RetryCount, entry.MaxRetries, actor))
	return entry, nil
}

// Ignore dismisses a pending entry. Operator decision, never automatic.
func (q *ErrorQueue) Ignore(ctx context.Context, id uuid.UUID, actor string) (*sync.SyncError, error) {
	entry, err := q.entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.Ignore(actor); err != nil {
		return entry, err
	}
	if err := q.entries.Save(ctx, entry); err != nil {
		return entry, err
	}
	q.appendLog(ctx, entry, sync.LogLevelWarning, fmt.Sprintf("entry ignored by %s", actor))
	return entry, nil
}

// MarkResolved resolves an entry without replaying it, for failures the
// operator fixed out-of-band.
func (q *ErrorQueue) MarkResolved(ctx context.Context, id uuid.UUID, actor string) (*sync.SyncError, error) {
	entry, err := q.entries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.Resolve(actor); err != nil {
		return entry, err
	}
	if err := q.entries.Save(ctx, entry); err != nil {
		return entry, err
	}
	q.appendLog(ctx, entry, sync.LogLevelInfo, fmt.Sprintf("entry resolved manually by %s", actor))
	return entry, nil
}

func (q *ErrorQueue) failRetry(ctx context.Context, entry *sync.SyncError, cause error) (*sync.SyncError, error) {
	if err := entry.FailRetry(sync.KindOf(cause), cause.Error()); err != nil {
		return entry, err
	}
	if err := q.entries.Save(ctx, entry); err != nil {
		return entry, err
	}
	q.appendLog(ctx, entry, sync.LogLevelWarning,
		fmt.Sprintf("retry %d/%d failed: %s", entry.RetryCount, entry.MaxRetries, cause.Error()))
	return entry, cause
}

func (q *ErrorQueue) appendLog(ctx context.Context, entry *sync.SyncError, level sync.LogLevel, msg string) {
	logEntry := sync.NewSyncLog(entry.Scope, level, entry.SourceTable, entry.SourceID, msg)
	if err := q.logs.Append(ctx, logEntry); err != nil {
		q.log.Warn("failed to append sync log", zap.Error(err), zap.String("scope", entry.Scope))
	}
}
