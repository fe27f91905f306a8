package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/marketsync/internal/domain/sync"
)

// AccountModel is the persistence model for the Account domain entity.
type AccountModel struct {
	ID             string     `gorm:"type:varchar(36);primaryKey"`
	Scope          string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_accounts_scope"`
	ExternalUserID string     `gorm:"type:varchar(100);not null;index:idx_accounts_external_user"`
	DisplayName    string     `gorm:"type:varchar(255)"`
	AccessToken    string     `gorm:"type:text"`
	RefreshToken   string     `gorm:"type:text"`
	TokenExpiresAt time.Time  `gorm:""`
	State          string     `gorm:"type:varchar(20);not null;default:'DISCONNECTED'"`
	LastError      string     `gorm:"type:text"`
	LastSyncAt     *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account entity.
func (m *AccountModel) ToDomain() *sync.Account {
	id, _ := uuid.Parse(m.ID)
	return &sync.Account{
		ID:             id,
		Scope:          m.Scope,
		ExternalUserID: m.ExternalUserID,
		DisplayName:    m.DisplayName,
		AccessToken:    m.AccessToken,
		RefreshToken:   m.RefreshToken,
		TokenExpiresAt: m.TokenExpiresAt,
		State:          sync.ConnectionState(m.State),
		LastError:      m.LastError,
		LastSyncAt:     m.LastSyncAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Account entity.
func (m *AccountModel) FromDomain(a *sync.Account) {
	m.ID = a.ID.String()
	m.Scope = a.Scope
	m.ExternalUserID = a.ExternalUserID
	m.DisplayName = a.DisplayName
	m.AccessToken = a.AccessToken
	m.RefreshToken = a.RefreshToken
	m.TokenExpiresAt = a.TokenExpiresAt
	m.State = a.State.String()
	m.LastError = a.LastError
	m.LastSyncAt = a.LastSyncAt
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// IDMappingModel is the persistence model for the IDMapping domain entity.
// The (scope, source_table, source_id) triple is enforced unique by a
// composite index; racing creators rely on it instead of an application lock.
type IDMappingModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	Scope       string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_id_mappings_source,priority:1"`
	SourceTable string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_id_mappings_source,priority:2"`
	SourceID    string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_id_mappings_source,priority:3"`
	TargetType  string    `gorm:"type:varchar(100);not null"`
	TargetID    int64     `gorm:"not null;index:idx_id_mappings_target"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IDMappingModel) TableName() string {
	return "id_mappings"
}

// ToDomain converts the persistence model to a domain IDMapping entity.
func (m *IDMappingModel) ToDomain() *sync.IDMapping {
	id, _ := uuid.Parse(m.ID)
	return &sync.IDMapping{
		ID:          id,
		Scope:       m.Scope,
		SourceTable: m.SourceTable,
		SourceID:    m.SourceID,
		TargetType:  m.TargetType,
		TargetID:    m.TargetID,
		CreatedAt:   m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain IDMapping entity.
func (m *IDMappingModel) FromDomain(im *sync.IDMapping) {
	m.ID = im.ID.String()
	m.Scope = im.Scope
	m.SourceTable = im.SourceTable
	m.SourceID = im.SourceID
	m.TargetType = im.TargetType
	m.TargetID = im.TargetID
	m.CreatedAt = im.CreatedAt
}

// SyncErrorModel is the persistence model for the SyncError domain entity.
type SyncErrorModel struct {
	ID          string     `gorm:"type:varchar(36);primaryKey"`
	Scope       string     `gorm:"type:varchar(100);not null;index:idx_sync_errors_scope_state,priority:1;index:idx_sync_errors_source,priority:1"`
	SourceTable string     `gorm:"type:varchar(100);not null;index:idx_sync_errors_source,priority:2"`
	SourceID    string     `gorm:"type:varchar(100);not null;index:idx_sync_errors_source,priority:3"`
	Payload     string     `gorm:"type:text"`
	Kind        string     `gorm:"type:varchar(30);not null"`
	Message     string     `gorm:"type:text"`
	State       string     `gorm:"type:varchar(20);not null;index:idx_sync_errors_scope_state,priority:2"`
	RetryCount  int        `gorm:"not null;default:0"`
	MaxRetries  int        `gorm:"not null;default:3"`
	LastTriedAt *time.Time `gorm:""`
	ResolvedAt  *time.Time `gorm:""`
	ResolvedBy  string     `gorm:"type:varchar(100)"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncErrorModel) TableName() string {
	return "sync_errors"
}

// ToDomain converts the persistence model to a domain SyncError entity.
func (m *SyncErrorModel) ToDomain() *sync.SyncError {
	id, _ := uuid.Parse(m.ID)
	return &sync.SyncError{
		ID:          id,
		Scope:       m.Scope,
		SourceTable: m.SourceTable,
		SourceID:    m.SourceID,
		Payload:     m.Payload,
		Kind:        sync.ErrorKind(m.Kind),
		Message:     m.Message,
		State:       sync.SyncErrorState(m.State),
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		LastTriedAt: m.LastTriedAt,
		ResolvedAt:  m.ResolvedAt,
		ResolvedBy:  m.ResolvedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncError entity.
func (m *SyncErrorModel) FromDomain(e *sync.SyncError) {
	m.ID = e.ID.String()
	m.Scope = e.Scope
	m.SourceTable = e.SourceTable
	m.SourceID = e.SourceID
	m.Payload = e.Payload
	m.Kind = e.Kind.String()
	m.Message = e.Message
	m.State = e.State.String()
	m.RetryCount = e.RetryCount
	m.MaxRetries = e.MaxRetries
	m.LastTriedAt = e.LastTriedAt
	m.ResolvedAt = e.ResolvedAt
	m.ResolvedBy = e.ResolvedBy
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// SyncLogModel is the persistence model for the SyncLog domain entity.
type SyncLogModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	Scope       string    `gorm:"type:varchar(100);not null;index:idx_sync_logs_scope"`
	Level       string    `gorm:"type:varchar(10);not null"`
	SourceTable string    `gorm:"type:varchar(100)"`
	SourceID    string    `gorm:"type:varchar(100)"`
	Message     string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;index:idx_sync_logs_created_at"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog entity.
func (m *SyncLogModel) ToDomain() *sync.SyncLog {
	id, _ := uuid.Parse(m.ID)
	return &sync.SyncLog{
		ID:          id,
		Scope:       m.Scope,
		Level:       sync.LogLevel(m.Level),
		SourceTable: m.SourceTable,
		SourceID:    m.SourceID,
		Message:     m.Message,
		CreatedAt:   m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncLog entity.
func (m *SyncLogModel) FromDomain(l *sync.SyncLog) {
	m.ID = l.ID.String()
	m.Scope = l.Scope
	m.Level = l.Level.String()
	m.SourceTable = l.SourceTable
	m.SourceID = l.SourceID
	m.Message = l.Message
	m.CreatedAt = l.CreatedAt
}

// TargetRecordModel is the generic internal record store the reconciler
// upserts into. The source identity quad is unique so a replayed record
// overwrites its earlier row instead of duplicating it.
type TargetRecordModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Scope       string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_target_records_source,priority:1"`
	TargetType  string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_target_records_source,priority:2"`
	SourceTable string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_target_records_source,priority:3"`
	SourceID    string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_target_records_source,priority:4"`
	Fields      string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TargetRecordModel) TableName() string {
	return "target_records"
}
