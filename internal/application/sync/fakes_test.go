package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/erp/marketsync/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// In-memory id mapping repository
// ---------------------------------------------------------------------------

type memIDMappingRepo struct {
	mu       gosync.Mutex
	mappings map[string]*sync.IDMapping
}

func newMemIDMappingRepo() *memIDMappingRepo {
	return &memIDMappingRepo{mappings: make(map[string]*sync.IDMapping)}
}

func mappingKey(scope, sourceTable, sourceID string) string {
	return fmt.Sprintf("%s/%s/%s", scope, sourceTable, sourceID)
}

func (r *memIDMappingRepo) Resolve(ctx context.Context, scope, sourceTable, sourceID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.mappings[mappingKey(scope, sourceTable, sourceID)]; ok {
		return m.TargetID, nil
	}
	return 0, sync.ErrMappingNotFound
}

func (r *memIDMappingRepo) FindBySource(ctx context.Context, scope, sourceTable, sourceID string) (*sync.IDMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.mappings[mappingKey(scope, sourceTable, sourceID)]; ok {
		return m, nil
	}
	return nil, sync.ErrMappingNotFound
}

func (r *memIDMappingRepo) FindByScope(ctx context.Context, scope string, sourceTable string, limit, offset int) ([]sync.IDMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []sync.IDMapping
	for _, m := range r.mappings {
		if m.Scope == scope && (sourceTable == "" || m.SourceTable == sourceTable) {
			result = append(result, *m)
		}
	}
	return result, nil
}

func (r *memIDMappingRepo) CountByScope(ctx context.Context, scope string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.mappings {
		if m.Scope == scope {
			n++
		}
	}
	return n, nil
}

func (r *memIDMappingRepo) Create(ctx context.Context, mapping *sync.IDMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := mappingKey(mapping.Scope, mapping.SourceTable, mapping.SourceID)
	if _, exists := r.mappings[key]; exists {
		return sync.ErrDuplicateMapping
	}
	r.mappings[key] = mapping
	return nil
}

func (r *memIDMappingRepo) BulkCreate(ctx context.Context, mappings []*sync.IDMapping) (int, error) {
	created := 0
	for _, m := range mappings {
		if err := r.Create(ctx, m); err == nil {
			created++
		}
	}
	return created, nil
}

// ---------------------------------------------------------------------------
// In-memory dead letter repository
// ---------------------------------------------------------------------------

type memSyncErrorRepo struct {
	mu      gosync.Mutex
	entries map[uuid.UUID]*sync.SyncError
}

func newMemSyncErrorRepo() *memSyncErrorRepo {
	return &memSyncErrorRepo{entries: make(map[uuid.UUID]*sync.SyncError)}
}

func (r *memSyncErrorRepo) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sync.ErrSyncErrorNotFound
}

func (r *memSyncErrorRepo) FindBySource(ctx context.Context, scope, sourceTable, sourceID string) (*sync.SyncError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Scope == scope && e.SourceTable == sourceTable && e.SourceID == sourceID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sync.ErrSyncErrorNotFound
}

func (r *memSyncErrorRepo) FindPendingBySource(ctx context.Context, scope, sourceTable, sourceID string) (*sync.SyncError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Scope == scope && e.SourceTable == sourceTable && e.SourceID == sourceID && e.State == sync.SyncErrorStatePending {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sync.ErrSyncErrorNotFound
}

func (r *memSyncErrorRepo) List(ctx context.Context, scope string, filter sync.SyncErrorFilter) ([]sync.SyncError, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []sync.SyncError
	for _, e := range r.entries {
		if e.Scope != scope {
			continue
		}
		if filter.State != nil && e.State != *filter.State {
			continue
		}
		if filter.Kind != nil && e.Kind != *filter.Kind {
			continue
		}
		if filter.SourceTable != "" && e.SourceTable != filter.SourceTable {
			continue
		}
		result = append(result, *e)
	}
	return result, int64(len(result)), nil
}

func (r *memSyncErrorRepo) CountByState(ctx context.Context, scope string) (map[sync.SyncErrorState]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[sync.SyncErrorState]int64)
	for _, e := range r.entries {
		if e.Scope == scope {
			counts[e.State]++
		}
	}
	return counts, nil
}

func (r *memSyncErrorRepo) Create(ctx context.Context, entry *sync.SyncError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *memSyncErrorRepo) Save(ctx context.Context, entry *sync.SyncError) error {
	return r.Create(ctx, entry)
}

// ---------------------------------------------------------------------------
// In-memory sync log repository
// ---------------------------------------------------------------------------

type memSyncLogRepo struct {
	mu      gosync.Mutex
	entries []sync.SyncLog
}

func newMemSyncLogRepo() *memSyncLogRepo {
	return &memSyncLogRepo{}
}

func (r *memSyncLogRepo) Append(ctx context.Context, entry *sync.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memSyncLogRepo) ListByScope(ctx context.Context, scope string, limit int) ([]sync.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []sync.SyncLog
	for i := len(r.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if r.entries[i].Scope == scope {
			result = append(result, r.entries[i])
		}
	}
	return result, nil
}

func (r *memSyncLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []sync.SyncLog
	var deleted int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return deleted, nil
}

// ---------------------------------------------------------------------------
// In-memory account repository
// ---------------------------------------------------------------------------

type memAccountRepo struct {
	mu       gosync.Mutex
	accounts map[uuid.UUID]*sync.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[uuid.UUID]*sync.Account)}
}

func (r *memAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*sync.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sync.ErrAccountNotFound
}

func (r *memAccountRepo) FindByScope(ctx context.Context, scope string) (*sync.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Scope == scope {
			copied := *a
			return &copied, nil
		}
	}
	return nil, sync.ErrAccountNotFound
}

func (r *memAccountRepo) FindByExternalUserID(ctx context.Context, externalUserID string) (*sync.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ExternalUserID == externalUserID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, sync.ErrAccountNotFound
}

func (r *memAccountRepo) FindConnected(ctx context.Context) ([]sync.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []sync.Account
	for _, a := range r.accounts {
		if a.State == sync.ConnectionStateConnected {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *memAccountRepo) FindAll(ctx context.Context) ([]sync.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []sync.Account
	for _, a := range r.accounts {
		result = append(result, *a)
	}
	return result, nil
}

func (r *memAccountRepo) Save(ctx context.Context, account *sync.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memAccountRepo) UpdateTokenGrant(ctx context.Context, id uuid.UUID, grant sync.TokenGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return sync.ErrAccountNotFound
	}
	a.ApplyTokenGrant(grant.AccessToken, grant.RefreshToken, grant.ExpiresAt)
	return nil
}

func (r *memAccountRepo) UpdateState(ctx context.Context, id uuid.UUID, state sync.ConnectionState, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return sync.ErrAccountNotFound
	}
	a.State = state
	a.LastError = lastError
	return nil
}

// ---------------------------------------------------------------------------
// In-memory target writer
// ---------------------------------------------------------------------------

type memTargetWriter struct {
	mu      gosync.Mutex
	nextID  int64
	rows    map[string]int64
	fields  map[string]map[string]any
	failAll error
}

func newMemTargetWriter() *memTargetWriter {
	return &memTargetWriter{
		rows:   make(map[string]int64),
		fields: make(map[string]map[string]any),
	}
}

func (w *memTargetWriter) Upsert(ctx context.Context, scope, targetType, sourceTable, sourceID string, fields map[string]any) (int64, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAll != nil {
		return 0, false, w.failAll
	}
	key := fmt.Sprintf("%s/%s/%s/%s", scope, targetType, sourceTable, sourceID)
	if id, ok := w.rows[key]; ok {
		w.fields[key] = fields
		return id, false, nil
	}
	w.nextID++
	w.rows[key] = w.nextID
	w.fields[key] = fields
	return w.nextID, true, nil
}

func (w *memTargetWriter) rowCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

// ---------------------------------------------------------------------------
// Scripted resource lister
// ---------------------------------------------------------------------------

type fakeLister struct {
	pages map[string][]*sync.RecordPage
	calls int
	err   error
}

func newFakeLister() *fakeLister {
	return &fakeLister{pages: make(map[string][]*sync.RecordPage)}
}

func (l *fakeLister) ListPage(ctx context.Context, account *sync.Account, path string, page, pageSize int) (*sync.RecordPage, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	pages := l.pages[path]
	if page < 1 || page > len(pages) {
		return &sync.RecordPage{}, nil
	}
	return pages[page-1], nil
}

// ---------------------------------------------------------------------------
// In-memory idempotency store
// ---------------------------------------------------------------------------

type memDedupe struct {
	mu   gosync.Mutex
	seen map[string]bool
}

func newMemDedupe() *memDedupe {
	return &memDedupe{seen: make(map[string]bool)}
}

func (d *memDedupe) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *memDedupe) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[eventID], nil
}
