package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config carries the orchestration knobs explicitly; there are no ambient
// global settings.
type Config struct {
	// PageSize is the listing page size requested from the marketplace
	PageSize int
	// MaxRetries caps automatic retries per dead letter entry
	MaxRetries int
	// LogRetention bounds the age of sync log entries kept by the GC job
	LogRetention time.Duration
}

// Normalize fills unset fields with defaults
func (c Config) Normalize() Config {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = sync.DefaultMaxRetries
	}
	if c.LogRetention <= 0 {
		c.LogRetention = 30 * 24 * time.Hour
	}
	return c
}

// ---------------------------------------------------------------------------
// PassReport
// ---------------------------------------------------------------------------

// PassReport summarizes one sync pass over a single resource
type PassReport struct {
	// Scope is the account namespace the pass ran under
	Scope string `json:"scope"`
	// SourceTable is the external resource that was synced
	SourceTable string `json:"source_table"`
	// Found is the number of records the listing returned
	Found int `json:"found"`
	// Processed is the number of records reconciled successfully
	Processed int `json:"processed"`
	// Created is the number of target records newly inserted
	Created int `json:"created"`
	// Updated is the number of target records overwritten idempotently
	Updated int `json:"updated"`
	// Errored is the number of records routed to the error queue
	Errored int `json:"errored"`
	// StartedAt is when the pass began
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the pass ended, successfully or not
	FinishedAt time.Time `json:"finished_at"`
}

func (r *PassReport) summary() string {
	return fmt.Sprintf("sync pass %s: found=%d processed=%d created=%d updated=%d errored=%d",
		r.SourceTable, r.Found, r.Processed, r.Created, r.Updated, r.Errored)
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// Orchestrator runs paginated sync passes: it pages the marketplace listing,
// feeds every record to the reconciler, and routes classified failures to the
// dead letter queue. Auth failures abort the whole pass; everything else is
// queued per record and the pass continues.
type Orchestrator struct {
	accounts   sync.AccountRepository
	lister     sync.ResourceLister
	reconciler *Reconciler
	queue      sync.SyncErrorRepository
	logs       sync.SyncLogRepository
	mappings   *sync.MappingSet
	cfg        Config
	log        *zap.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	accounts sync.AccountRepository,
	lister sync.ResourceLister,
	reconciler *Reconciler,
	queue sync.SyncErrorRepository,
	logs sync.SyncLogRepository,
	mappings *sync.MappingSet,
	cfg Config,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		accounts:   accounts,
		lister:     lister,
		reconciler: reconciler,
		queue:      queue,
		logs:       logs,
		mappings:   mappings,
		cfg:        cfg.Normalize(),
		log:        log,
	}
}

// RunAll runs one pass per declared resource, in declaration order so that
// parent tables are synced before the tables referencing them. The first
// aborting error stops the run; reports for completed passes are returned.
func (o *Orchestrator) RunAll(ctx context.Context, accountID uuid.UUID) ([]PassReport, error) {
	reports := make([]PassReport, 0, len(o.mappings.Tables()))
	for _, table := range o.mappings.Tables() {
		report, err := o.RunPass(ctx, accountID, table)
		if report != nil {
			reports = append(reports, *report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// RunPass runs one paginated pass over a single resource for an account
func (o *Orchestrator) RunPass(ctx context.Context, accountID uuid.UUID, sourceTable string) (*PassReport, error) {
	account, err := o.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.State != sync.ConnectionStateConnected {
		return nil, fmt.Errorf("%w: scope %s", sync.ErrAccountDisconnected, account.Scope)
	}

	mapping, ok := o.mappings.ForTable(sourceTable)
	if !ok {
		return nil, sync.Classifyf(sync.ErrorKindTransform, "no table mapping declared for %q", sourceTable)
	}

	report := &PassReport{
		Scope:       account.Scope,
		SourceTable: sourceTable,
		StartedAt:   time.Now(),
	}
	o.log.Info("sync pass started",
		zap.String("scope", account.Scope),
		zap.String("source_table", sourceTable),
	)

	page := 1
	for {
		recordPage, err := o.lister.ListPage(ctx, account, mapping.ListPath, page, o.cfg.PageSize)
		if err != nil {
			return o.abortPass(ctx, account, report, fmt.Errorf("listing page %d: %w", page, err))
		}

		report.Found += len(recordPage.Records)
		for _, record := range recordPage.Records {
			if err := ctx.Err(); err != nil {
				report.FinishedAt = time.Now()
				return report, err
			}
			if err := o.processRecord(ctx, account, mapping, record, report); err != nil {
				return o.abortPass(ctx, account, report, err)
			}
		}

		if !recordPage.HasMore {
			break
		}
		page = recordPage.NextPage
	}

	report.FinishedAt = time.Now()
	account.RecordSyncPass(report.FinishedAt)
	if err := o.accounts.Save(ctx, account); err != nil {
		o.log.Warn("failed to stamp account sync time", zap.Error(err), zap.String("scope", account.Scope))
	}

	o.appendLog(ctx, account.Scope, sync.LogLevelInfo, sourceTable, "", report.summary())
	o.log.Info("sync pass finished",
		zap.String("scope", account.Scope),
		zap.String("source_table", sourceTable),
		zap.Int("found", report.Found),
		zap.Int("processed", report.Processed),
		zap.Int("errored", report.Errored),
	)
	return report, nil
}

// processRecord reconciles one record and routes the outcome. A non-nil return
// aborts the pass; queued per-record failures return nil.
func (o *Orchestrator) processRecord(ctx context.Context, account *sync.Account, mapping *sync.TableMapping, record sync.SourceRecord, report *PassReport) error {
	result, err := o.reconciler.TransformAndInsert(ctx, account.Scope, mapping.SourceTable, record)
	if err == nil {
		report.Processed++
		if result.Created {
			report.Created++
		} else {
			report.Updated++
		}
		o.resolvePending(ctx, account.Scope, mapping, record)
		return nil
	}

	kind := sync.KindOf(err)
	if kind.AbortsPass() {
		return err
	}

	report.Errored++
	o.queueFailure(ctx, account.Scope, mapping, record, kind, err)
	return nil
}

// queueFailure files one failed record into the dead letter queue: refreshing
// the existing pending entry if the record already failed before, creating a
// new one otherwise.
func (o *Orchestrator) queueFailure(ctx context.Context, scope string, mapping *sync.TableMapping, record sync.SourceRecord, kind sync.ErrorKind, cause error) {
	sourceID, ok := record.GetString(mapping.IDField)
	if !ok || sourceID == "" {
		// Without a source id the failure cannot be keyed or replayed
		o.appendLog(ctx, scope, sync.LogLevelError, mapping.SourceTable, "",
			fmt.Sprintf("record without %q field dropped: %s", mapping.IDField, cause.Error()))
		return
	}

	existing, err := o.queue.FindPendingBySource(ctx, scope, mapping.SourceTable, sourceID)
	if err == nil {
		existing.RefreshFailure(kind, cause.Error())
		if err := o.queue.Save(ctx, existing); err != nil {
			o.log.Error("failed to refresh dead letter entry", zap.Error(err), zap.String("source_id", sourceID))
		}
		return
	}
	if !errors.Is(err, sync.ErrSyncErrorNotFound) {
		o.log.Error("dead letter lookup failed", zap.Error(err), zap.String("source_id", sourceID))
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		o.log.Error("failed to serialize payload", zap.Error(err), zap.String("source_id", sourceID))
		return
	}
	entry, err := sync.NewSyncError(scope, mapping.SourceTable, sourceID, string(payload), kind, cause.Error(), o.cfg.MaxRetries)
	if err != nil {
		o.log.Error("failed to build dead letter entry", zap.Error(err), zap.String("source_id", sourceID))
		return
	}
	if err := o.queue.Create(ctx, entry); err != nil {
		o.log.Error("failed to queue dead letter entry", zap.Error(err), zap.String("source_id", sourceID))
		return
	}
	o.appendLog(ctx, scope, sync.LogLevelWarning, mapping.SourceTable, sourceID,
		fmt.Sprintf("record queued for retry (%s): %s", kind, cause.Error()))
}

// resolvePending closes the pending entry of a record that now reconciles
// cleanly, so stale queue entries do not outlive their cause.
func (o *Orchestrator) resolvePending(ctx context.Context, scope string, mapping *sync.TableMapping, record sync.SourceRecord) {
	sourceID, ok := record.GetString(mapping.IDField)
	if !ok || sourceID == "" {
		return
	}
	entry, err := o.queue.FindPendingBySource(ctx, scope, mapping.SourceTable, sourceID)
	if err != nil {
		return
	}
	if err := entry.Resolve("orchestrator"); err != nil {
		return
	}
	if err := o.queue.Save(ctx, entry); err != nil {
		o.log.Warn("failed to resolve dead letter entry", zap.Error(err), zap.String("source_id", sourceID))
	}
}

// abortPass finalizes the report, flips the account into the error state on
// auth failures, and leaves an audit trail.
func (o *Orchestrator) abortPass(ctx context.Context, account *sync.Account, report *PassReport, cause error) (*PassReport, error) {
	report.FinishedAt = time.Now()

	if sync.KindOf(cause).AbortsPass() {
		account.MarkError(cause.Error())
		if err := o.accounts.UpdateState(ctx, account.ID, account.State, account.LastError); err != nil {
			o.log.Error("failed to persist account error state", zap.Error(err), zap.String("scope", account.Scope))
		}
	}

	o.appendLog(ctx, account.Scope, sync.LogLevelError, report.SourceTable, "",
		fmt.Sprintf("sync pass aborted: %s", cause.Error()))
	o.log.Error("sync pass aborted",
		zap.String("scope", account.Scope),
		zap.String("source_table", report.SourceTable),
		zap.Error(cause),
	)
	return report, cause
}

func (o *Orchestrator) appendLog(ctx context.Context, scope string, level sync.LogLevel, sourceTable, sourceID, msg string) {
	if err := o.logs.Append(ctx, sync.NewSyncLog(scope, level, sourceTable, sourceID, msg)); err != nil {
		o.log.Warn("failed to append sync log", zap.Error(err), zap.String("scope", scope))
	}
}
