package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LogLevel represents the severity of a sync log entry
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// IsValid returns true if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// SyncLog is an append-only record of one orchestration event, tied to a
// scope and optionally to a source record. Entries are write-once and
// garbage-collected by age.
type SyncLog struct {
	ID          uuid.UUID
	Scope       string
	Level       LogLevel
	SourceTable string
	SourceID    string
	Message     string
	CreatedAt   time.Time
}

// NewSyncLog creates a new log entry
func NewSyncLog(scope string, level LogLevel, sourceTable, sourceID, message string) *SyncLog {
	if !level.IsValid() {
		level = LogLevelInfo
	}
	return &SyncLog{
		ID:          uuid.New(),
		Scope:       scope,
		Level:       level,
		SourceTable: sourceTable,
		SourceID:    sourceID,
		Message:     message,
		CreatedAt:   time.Now(),
	}
}

// SyncLogRepository defines the interface for the append-only sync log
type SyncLogRepository interface {
	// Append persists a new log entry
	Append(ctx context.Context, entry *SyncLog) error

	// ListByScope lists recent entries for a scope, newest first
	ListByScope(ctx context.Context, scope string, limit int) ([]SyncLog, error)

	// DeleteOlderThan removes entries created before the cutoff and returns
	// the number of rows deleted
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
