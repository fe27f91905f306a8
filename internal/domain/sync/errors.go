package sync

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

var (
	// Account errors
	ErrAccountNotFound     = errors.New("sync: account not found")
	ErrAccountDisconnected = errors.New("sync: account is disconnected")
	ErrAccountInvalidScope = errors.New("sync: invalid account scope")
	ErrTokenExpired        = errors.New("sync: access token expired")
	ErrRefreshFailed       = errors.New("sync: token refresh failed")

	// Mapping errors
	ErrMappingNotFound    = errors.New("sync: id mapping not found")
	ErrDuplicateMapping   = errors.New("sync: id mapping already exists")
	ErrMappingInvalidKey  = errors.New("sync: mapping requires scope, source table and source id")
	ErrMappingInvalidSpec = errors.New("sync: invalid table mapping specification")

	// Dead letter queue errors
	ErrSyncErrorNotFound      = errors.New("sync: sync error entry not found")
	ErrRetryLimitExceeded     = errors.New("sync: retry limit exceeded")
	ErrInvalidStateTransition = errors.New("sync: invalid sync error state transition")

	// Gateway errors
	ErrGatewayConnection    = errors.New("sync: marketplace connection failed")
	ErrGatewayUnauthorized  = errors.New("sync: marketplace rejected credentials")
	ErrGatewayInvalidReply  = errors.New("sync: invalid marketplace response")
	ErrGatewayRequestFailed = errors.New("sync: marketplace request failed")
)

// ---------------------------------------------------------------------------
// ErrorKind
// ---------------------------------------------------------------------------

// ErrorKind classifies a reconciliation or gateway failure. The kind decides
// routing: auth failures abort a whole orchestrator pass, transient kinds are
// queued for retry, and duplicate is treated as idempotent success on retry
// paths.
type ErrorKind string

const (
	// ErrorKindConnection indicates a network-level failure (timeout, refused).
	ErrorKindConnection ErrorKind = "connection"
	// ErrorKindAuth indicates token refresh or credential failure.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindValidation indicates the source record failed validation.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindConstraint indicates the target store rejected the write.
	ErrorKindConstraint ErrorKind = "constraint"
	// ErrorKindTransform indicates the payload shape was unexpected.
	ErrorKindTransform ErrorKind = "transform"
	// ErrorKindLookup indicates a referenced record could not be found.
	ErrorKindLookup ErrorKind = "lookup"
	// ErrorKindMissingDependency indicates a required parent is not mapped yet.
	ErrorKindMissingDependency ErrorKind = "missing_dependency"
	// ErrorKindDuplicate indicates the mapping or target already exists.
	ErrorKindDuplicate ErrorKind = "duplicate"
	// ErrorKindUnknown is the catch-all classification.
	ErrorKindUnknown ErrorKind = "unknown"
)

// IsValid returns true if the error kind is valid
func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrorKindConnection, ErrorKindAuth, ErrorKindValidation, ErrorKindConstraint,
		ErrorKindTransform, ErrorKindLookup, ErrorKindMissingDependency,
		ErrorKindDuplicate, ErrorKindUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// IsTransient returns true for kinds expected to self-resolve on retry once
// the environment changes (network recovered, parent table processed).
func (k ErrorKind) IsTransient() bool {
	return k == ErrorKindConnection || k == ErrorKindMissingDependency
}

// AbortsPass returns true if the kind should abort the whole orchestrator
// pass instead of being queued per record.
func (k ErrorKind) AbortsPass() bool {
	return k == ErrorKindAuth
}

// ---------------------------------------------------------------------------
// ClassifiedError
// ---------------------------------------------------------------------------

// ClassifiedError carries an ErrorKind alongside the underlying cause. It is
// the tagged result the reconciliation engine and gateway return instead of
// using errors for control flow.
type ClassifiedError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("sync: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify creates a ClassifiedError with the given kind and message
func Classify(kind ErrorKind, message string) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: message}
}

// Classifyf creates a ClassifiedError with a formatted message
func Classifyf(kind ErrorKind, format string, args ...any) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a ClassifiedError wrapping an underlying cause
func Wrap(kind ErrorKind, message string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the ErrorKind from an error. Unclassified errors map to
// ErrorKindUnknown; nil maps to the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrDuplicateMapping):
		return ErrorKindDuplicate
	case errors.Is(err, ErrMappingNotFound):
		return ErrorKindLookup
	case errors.Is(err, ErrRefreshFailed), errors.Is(err, ErrGatewayUnauthorized):
		return ErrorKindAuth
	case errors.Is(err, ErrGatewayConnection):
		return ErrorKindConnection
	default:
		return ErrorKindUnknown
	}
}
