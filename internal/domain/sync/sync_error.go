package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncErrorState
// ---------------------------------------------------------------------------

// SyncErrorState represents the state of a dead letter entry.
// Transitions are monotonic: pending -> retrying -> {resolved | pending},
// pending -> ignored (manual only). Resolved and ignored are terminal.
type SyncErrorState string

const (
	// SyncErrorStatePending indicates the entry awaits retry or operator action
	SyncErrorStatePending SyncErrorState = "PENDING"
	// SyncErrorStateRetrying indicates a retry is in flight
	SyncErrorStateRetrying SyncErrorState = "RETRYING"
	// SyncErrorStateResolved indicates the failure was fixed (terminal)
	SyncErrorStateResolved SyncErrorState = "RESOLVED"
	// SyncErrorStateIgnored indicates an operator dismissed the entry (terminal)
	SyncErrorStateIgnored SyncErrorState = "IGNORED"
)

// IsValid returns true if the state is valid
func (s SyncErrorState) IsValid() bool {
	switch s {
	case SyncErrorStatePending, SyncErrorStateRetrying, SyncErrorStateResolved, SyncErrorStateIgnored:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncErrorState
func (s SyncErrorState) String() string {
	return string(s)
}

// IsTerminal returns true for resolved and ignored
func (s SyncErrorState) IsTerminal() bool {
	return s == SyncErrorStateResolved || s == SyncErrorStateIgnored
}

// ---------------------------------------------------------------------------
// SyncError Entity (Dead Letter Queue entry)
// ---------------------------------------------------------------------------

// DefaultMaxRetries is the retry cap applied when none is configured
const DefaultMaxRetries = 3

// SyncError represents one failed reconciliation attempt together with the
// raw payload needed to replay it. Entries form an audit trail and are never
// auto-deleted.
type SyncError struct {
	// ID is the unique identifier of this entry
	ID uuid.UUID
	// Scope is the account/project namespace
	Scope string
	// SourceTable is the external resource the record came from
	SourceTable string
	// SourceID is the external record identifier
	SourceID string
	// Payload is the raw source record, serialized as JSON
	Payload string
	// Kind is the failure classification
	Kind ErrorKind
	// Message is the human-readable failure description
	Message string
	// State is the dead letter state
	State SyncErrorState
	// RetryCount is the number of retries attempted so far
	RetryCount int
	// MaxRetries caps RetryCount; Retry fails fast once reached
	MaxRetries int
	// LastTriedAt is when the last retry started
	LastTriedAt *time.Time
	// ResolvedAt is when the entry reached a terminal state
	ResolvedAt *time.Time
	// ResolvedBy records the operator or process that resolved the entry
	ResolvedBy string
	// CreatedAt is when the entry was created
	CreatedAt time.Time
	// UpdatedAt is when the entry was last modified
	UpdatedAt time.Time
}

// NewSyncError creates a new pending dead letter entry
func NewSyncError(scope, sourceTable, sourceID, payload string, kind ErrorKind, message string, maxRetries int) (*SyncError, error) {
	if scope == "" || sourceTable == "" || sourceID == "" {
		return nil, ErrMappingInvalidKey
	}
	if !kind.IsValid() {
		kind = ErrorKindUnknown
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now := time.Now()
	return &SyncError{
		ID:          uuid.New(),
		Scope:       scope,
		SourceTable: sourceTable,
		SourceID:    sourceID,
		Payload:     payload,
		Kind:        kind,
		Message:     message,
		State:       SyncErrorStatePending,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanRetry returns true if a retry is currently legal
func (e *SyncError) CanRetry() bool {
	return e.State == SyncErrorStatePending && e.RetryCount < e.MaxRetries
}

// BeginRetry transitions pending -> retrying and increments the retry count.
// Fails fast with ErrRetryLimitExceeded at the cap, leaving state unchanged.
func (e *SyncError) BeginRetry() error {
	if e.State != SyncErrorStatePending {
		return fmt.Errorf("%w: retry from %s", ErrInvalidStateTransition, e.State)
	}
	if e.RetryCount >= e.MaxRetries {
		return ErrRetryLimitExceeded
	}
	now := time.Now()
	e.State = SyncErrorStateRetrying
	e.RetryCount++
	e.LastTriedAt = &now
	e.UpdatedAt = now
	return nil
}

// CompleteRetry transitions retrying -> resolved after a successful replay
func (e *SyncError) CompleteRetry(resolvedBy string) error {
	if e.State != SyncErrorStateRetrying {
		return fmt.Errorf("%w: complete from %s", ErrInvalidStateTransition, e.State)
	}
	now := time.Now()
	e.State = SyncErrorStateResolved
	e.ResolvedAt = &now
	e.ResolvedBy = resolvedBy
	e.UpdatedAt = now
	return nil
}

// FailRetry transitions retrying -> pending with an updated classification
// and message; the entry stays available for another retry.
func (e *SyncError) FailRetry(kind ErrorKind, message string) error {
	if e.State != SyncErrorStateRetrying {
		return fmt.Errorf("%w: fail from %s", ErrInvalidStateTransition, e.State)
	}
	if kind.IsValid() {
		e.Kind = kind
	}
	e.State = SyncErrorStatePending
	e.Message = message
	e.UpdatedAt = time.Now()
	return nil
}

// Ignore transitions pending -> ignored. Operator override, never automatic.
func (e *SyncError) Ignore(by string) error {
	if e.State != SyncErrorStatePending {
		return fmt.Errorf("%w: ignore from %s", ErrInvalidStateTransition, e.State)
	}
	now := time.Now()
	e.State = SyncErrorStateIgnored
	e.ResolvedAt = &now
	e.ResolvedBy = by
	e.UpdatedAt = now
	return nil
}

// Resolve marks the entry resolved without replaying it, for cases where the
// operator fixed the target out-of-band.
func (e *SyncError) Resolve(by string) error {
	if e.State.IsTerminal() {
		return fmt.Errorf("%w: resolve from %s", ErrInvalidStateTransition, e.State)
	}
	now := time.Now()
	e.State = SyncErrorStateResolved
	e.ResolvedAt = &now
	e.ResolvedBy = by
	e.UpdatedAt = now
	return nil
}

// RefreshFailure updates kind and message of a pending entry when the same
// source record fails again during a later pass.
func (e *SyncError) RefreshFailure(kind ErrorKind, message string) {
	if kind.IsValid() {
		e.Kind = kind
	}
	e.Message = message
	e.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// SyncErrorRepository Interfaces
// ---------------------------------------------------------------------------

// SyncErrorFilter defines filter criteria for listing dead letter entries
type SyncErrorFilter struct {
	// State filters by dead letter state (optional)
	State *SyncErrorState
	// Kind filters by error classification (optional)
	Kind *ErrorKind
	// SourceTable filters by external resource (optional)
	SourceTable string
	// Page number (1-indexed)
	Page int
	// Page size
	PageSize int
}

// SyncErrorReader defines the read side of the dead letter queue
type SyncErrorReader interface {
	// FindByID finds an entry by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncError, error)

	// FindBySource finds the entry for an external record, any state
	FindBySource(ctx context.Context, scope, sourceTable, sourceID string) (*SyncError, error)

	// FindPendingBySource finds the pending entry for an external record
	FindPendingBySource(ctx context.Context, scope, sourceTable, sourceID string) (*SyncError, error)

	// List lists entries within a scope with optional filters
	List(ctx context.Context, scope string, filter SyncErrorFilter) ([]SyncError, int64, error)

	// CountByState counts entries per state within a scope
	CountByState(ctx context.Context, scope string) (map[SyncErrorState]int64, error)
}

// SyncErrorWriter defines the write side of the dead letter queue
type SyncErrorWriter interface {
	// Create persists a new entry
	Create(ctx context.Context, entry *SyncError) error

	// Save updates an existing entry
	Save(ctx context.Context, entry *SyncError) error
}

// SyncErrorRepository defines the full interface for dead letter persistence
type SyncErrorRepository interface {
	SyncErrorReader
	SyncErrorWriter
}
