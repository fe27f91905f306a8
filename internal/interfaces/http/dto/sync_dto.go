package dto

import (
	"encoding/json"
	"time"

	appsync "github.com/erp/marketsync/internal/application/sync"
	"github.com/erp/marketsync/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Account DTOs
// ---------------------------------------------------------------------------

// ConnectAccountRequest completes the OAuth handshake for a scope
type ConnectAccountRequest struct {
	// Scope namespaces all mappings and errors of this connection
	Scope string `json:"scope" binding:"required,min=1,max=64"`
	// DisplayName is an optional operator-facing label
	DisplayName string `json:"display_name" binding:"omitempty,max=255"`
	// Code is the OAuth callback code to exchange at the token endpoint
	Code string `json:"code" binding:"required"`
}

// AccountResponse represents an account in API responses. Token material is
// never exposed; only the expiry is reported so operators can see staleness.
type AccountResponse struct {
	ID             string     `json:"id"`
	Scope          string     `json:"scope"`
	ExternalUserID string     `json:"external_user_id"`
	DisplayName    string     `json:"display_name,omitempty"`
	State          string     `json:"state"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
	LastError      string     `json:"last_error,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewAccountResponse converts a domain account to its API representation
func NewAccountResponse(account *sync.Account) AccountResponse {
	return AccountResponse{
		ID:             account.ID.String(),
		Scope:          account.Scope,
		ExternalUserID: account.ExternalUserID,
		DisplayName:    account.DisplayName,
		State:          account.State.String(),
		TokenExpiresAt: account.TokenExpiresAt,
		LastError:      account.LastError,
		LastSyncAt:     account.LastSyncAt,
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
	}
}

// NewAccountListResponse converts a slice of domain accounts
func NewAccountListResponse(accounts []sync.Account) []AccountResponse {
	out := make([]AccountResponse, len(accounts))
	for i := range accounts {
		out[i] = NewAccountResponse(&accounts[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// Sync pass DTOs
// ---------------------------------------------------------------------------

// StartPassRequest starts a sync pass for an account. An empty SourceTable
// runs one pass per declared resource in dependency order.
type StartPassRequest struct {
	SourceTable string `json:"source_table" binding:"omitempty,max=64"`
}

// PassReportResponse summarizes one completed sync pass
type PassReportResponse struct {
	Scope       string    `json:"scope"`
	SourceTable string    `json:"source_table"`
	Found       int       `json:"found"`
	Processed   int       `json:"processed"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Errored     int       `json:"errored"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// NewPassReportResponse converts an orchestrator pass report
func NewPassReportResponse(report *appsync.PassReport) PassReportResponse {
	return PassReportResponse{
		Scope:       report.Scope,
		SourceTable: report.SourceTable,
		Found:       report.Found,
		Processed:   report.Processed,
		Created:     report.Created,
		Updated:     report.Updated,
		Errored:     report.Errored,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	}
}

// NewPassReportListResponse converts a slice of pass reports
func NewPassReportListResponse(reports []appsync.PassReport) []PassReportResponse {
	out := make([]PassReportResponse, len(reports))
	for i := range reports {
		out[i] = NewPassReportResponse(&reports[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// Dead letter queue DTOs
// ---------------------------------------------------------------------------

// ListErrorsRequest filters the dead letter listing
type ListErrorsRequest struct {
	ListRequest
	State       string `form:"state" binding:"omitempty,oneof=PENDING RETRYING RESOLVED IGNORED"`
	Kind        string `form:"kind" binding:"omitempty"`
	SourceTable string `form:"source_table" binding:"omitempty,max=64"`
}

// ToFilter converts the request to a domain filter
func (r *ListErrorsRequest) ToFilter() sync.SyncErrorFilter {
	r.Normalize()
	filter := sync.SyncErrorFilter{
		SourceTable: r.SourceTable,
		Page:        r.Page,
		PageSize:    r.PageSize,
	}
	if r.State != "" {
		state := sync.SyncErrorState(r.State)
		filter.State = &state
	}
	if r.Kind != "" {
		kind := sync.ErrorKind(r.Kind)
		filter.Kind = &kind
	}
	return filter
}

// SyncErrorResponse represents a dead letter entry in API responses
type SyncErrorResponse struct {
	ID          string          `json:"id"`
	Scope       string          `json:"scope"`
	SourceTable string          `json:"source_table"`
	SourceID    string          `json:"source_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Kind        string          `json:"kind"`
	Message     string          `json:"message"`
	State       string          `json:"state"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	LastTriedAt *time.Time      `json:"last_tried_at,omitempty"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy  string          `json:"resolved_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewSyncErrorResponse converts a domain dead letter entry. The stored payload
// is emitted verbatim when it is valid JSON so clients can inspect the record
// that failed.
func NewSyncErrorResponse(entry *sync.SyncError) SyncErrorResponse {
	resp := SyncErrorResponse{
		ID:          entry.ID.String(),
		Scope:       entry.Scope,
		SourceTable: entry.SourceTable,
		SourceID:    entry.SourceID,
		Kind:        entry.Kind.String(),
		Message:     entry.Message,
		State:       entry.State.String(),
		RetryCount:  entry.RetryCount,
		MaxRetries:  entry.MaxRetries,
		LastTriedAt: entry.LastTriedAt,
		ResolvedAt:  entry.ResolvedAt,
		ResolvedBy:  entry.ResolvedBy,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
	if json.Valid([]byte(entry.Payload)) {
		resp.Payload = json.RawMessage(entry.Payload)
	}
	return resp
}

// NewSyncErrorListResponse converts a slice of dead letter entries. Payloads
// are omitted from listings to keep responses small.
func NewSyncErrorListResponse(entries []sync.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, len(entries))
	for i := range entries {
		out[i] = NewSyncErrorResponse(&entries[i])
		out[i].Payload = nil
	}
	return out
}

// ErrorStatsResponse reports per-state dead letter counts for a scope
type ErrorStatsResponse struct {
	Scope    string           `json:"scope"`
	ByState  map[string]int64 `json:"by_state"`
	Total    int64            `json:"total"`
	Pending  int64            `json:"pending"`
	Resolved int64            `json:"resolved"`
	Ignored  int64            `json:"ignored"`
}

// NewErrorStatsResponse converts per-state counts
func NewErrorStatsResponse(scope string, counts map[sync.SyncErrorState]int64) ErrorStatsResponse {
	resp := ErrorStatsResponse{
		Scope:   scope,
		ByState: make(map[string]int64, len(counts)),
	}
	for state, count := range counts {
		resp.ByState[state.String()] = count
		resp.Total += count
	}
	resp.Pending = counts[sync.SyncErrorStatePending]
	resp.Resolved = counts[sync.SyncErrorStateResolved]
	resp.Ignored = counts[sync.SyncErrorStateIgnored]
	return resp
}

// ---------------------------------------------------------------------------
// Mapping and log DTOs
// ---------------------------------------------------------------------------

// ListMappingsRequest filters the mapping table listing
type ListMappingsRequest struct {
	ListRequest
	SourceTable string `form:"source_table" binding:"omitempty,max=64"`
}

// MappingResponse represents an ID mapping in API responses
type MappingResponse struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	SourceTable string    `json:"source_table"`
	SourceID    string    `json:"source_id"`
	TargetType  string    `json:"target_type"`
	TargetID    int64     `json:"target_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewMappingResponse converts a domain ID mapping
func NewMappingResponse(mapping *sync.IDMapping) MappingResponse {
	return MappingResponse{
		ID:          mapping.ID.String(),
		Scope:       mapping.Scope,
		SourceTable: mapping.SourceTable,
		SourceID:    mapping.SourceID,
		TargetType:  mapping.TargetType,
		TargetID:    mapping.TargetID,
		CreatedAt:   mapping.CreatedAt,
	}
}

// NewMappingListResponse converts a slice of ID mappings
func NewMappingListResponse(mappings []sync.IDMapping) []MappingResponse {
	out := make([]MappingResponse, len(mappings))
	for i := range mappings {
		out[i] = NewMappingResponse(&mappings[i])
	}
	return out
}

// ListLogsRequest bounds the sync log listing
type ListLogsRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// Normalize applies the default limit
func (r *ListLogsRequest) Normalize() {
	if r.Limit < 1 {
		r.Limit = 100
	}
}

// LogResponse represents a sync log entry in API responses
type LogResponse struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	Level       string    `json:"level"`
	SourceTable string    `json:"source_table,omitempty"`
	SourceID    string    `json:"source_id,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewLogListResponse converts a slice of sync log entries
func NewLogListResponse(entries []sync.SyncLog) []LogResponse {
	out := make([]LogResponse, len(entries))
	for i, entry := range entries {
		out[i] = LogResponse{
			ID:          entry.ID.String(),
			Scope:       entry.Scope,
			Level:       entry.Level.String(),
			SourceTable: entry.SourceTable,
			SourceID:    entry.SourceID,
			Message:     entry.Message,
			CreatedAt:   entry.CreatedAt,
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Webhook DTOs
// ---------------------------------------------------------------------------

// WebhookEventRequest is the body the marketplace posts to the webhook
// endpoint. Everything beyond the type and scope is event-type specific and
// validated by the processor.
type WebhookEventRequest struct {
	EventID     string          `json:"event_id" binding:"omitempty,max=128"`
	Type        string          `json:"type" binding:"required"`
	Scope       string          `json:"scope" binding:"required"`
	SourceTable string          `json:"source_table"`
	SourceID    string          `json:"source_id"`
	TargetType  string          `json:"target_type"`
	TargetID    int64           `json:"target_id"`
	Kind        string          `json:"kind"`
	Message     string          `json:"message"`
	Payload     json.RawMessage `json:"payload"`
}

// ToEvent converts the request to an application event
func (r *WebhookEventRequest) ToEvent() *appsync.WebhookEvent {
	return &appsync.WebhookEvent{
		EventID:     r.EventID,
		Type:        r.Type,
		Scope:       r.Scope,
		SourceTable: r.SourceTable,
		SourceID:    r.SourceID,
		TargetType:  r.TargetType,
		TargetID:    r.TargetID,
		Kind:        r.Kind,
		Message:     r.Message,
		Payload:     r.Payload,
	}
}

// ---------------------------------------------------------------------------
// Auth DTOs
// ---------------------------------------------------------------------------

// IssueTokenRequest requests an operator API token
type IssueTokenRequest struct {
	Actor  string `json:"actor" binding:"required,max=255"`
	Secret string `json:"secret" binding:"required"`
}

// TokenResponse carries an issued operator token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
