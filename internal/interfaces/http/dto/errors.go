package dto

import (
	"errors"
	"net/http"

	"github.com/erp/marketsync/internal/domain/sync"
)

// Error code constants, format ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeBadRequest  = "ERR_BAD_REQUEST"
	ErrCodeValidation  = "ERR_VALIDATION"
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
)

// Sync error codes
const (
	// ErrCodeInvalidState covers error queue state transitions that are not allowed
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeRetryLimit is returned when an entry has exhausted its retries
	ErrCodeRetryLimit = "ERR_RETRY_LIMIT_EXCEEDED"
	// ErrCodeAccountDisconnected is returned when a sync is requested for a disconnected account
	ErrCodeAccountDisconnected = "ERR_ACCOUNT_DISCONNECTED"
	// ErrCodeUpstream covers marketplace connectivity and protocol failures
	ErrCodeUpstream = "ERR_UPSTREAM"
	// ErrCodeUpstreamAuth is returned when the marketplace rejects our credentials
	ErrCodeUpstreamAuth = "ERR_UPSTREAM_AUTH"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeValidation:  http.StatusBadRequest,
	ErrCodeInvalidJSON: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeRetryLimit:          http.StatusUnprocessableEntity,
	ErrCodeAccountDisconnected: http.StatusUnprocessableEntity,
	ErrCodeUpstream:            http.StatusBadGateway,
	ErrCodeUpstreamAuth:        http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code, defaulting
// to 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// MapDomainError maps a sync domain error to an API error code
func MapDomainError(err error) string {
	switch {
	case errors.Is(err, sync.ErrAccountNotFound),
		errors.Is(err, sync.ErrMappingNotFound),
		errors.Is(err, sync.ErrSyncErrorNotFound):
		return ErrCodeNotFound
	case errors.Is(err, sync.ErrDuplicateMapping):
		return ErrCodeAlreadyExists
	case errors.Is(err, sync.ErrAccountDisconnected):
		return ErrCodeAccountDisconnected
	case errors.Is(err, sync.ErrRetryLimitExceeded):
		return ErrCodeRetryLimit
	case errors.Is(err, sync.ErrInvalidStateTransition):
		return ErrCodeInvalidState
	case errors.Is(err, sync.ErrAccountInvalidScope),
		errors.Is(err, sync.ErrMappingInvalidKey),
		errors.Is(err, sync.ErrMappingInvalidSpec):
		return ErrCodeValidation
	case errors.Is(err, sync.ErrRefreshFailed),
		errors.Is(err, sync.ErrGatewayUnauthorized),
		errors.Is(err, sync.ErrTokenExpired):
		return ErrCodeUpstreamAuth
	case errors.Is(err, sync.ErrGatewayConnection),
		errors.Is(err, sync.ErrGatewayInvalidReply),
		errors.Is(err, sync.ErrGatewayRequestFailed):
		return ErrCodeUpstream
	default:
		return mapErrorKind(sync.KindOf(err))
	}
}

// mapErrorKind maps a failure classification to an API error code. Used for
// classified errors that carry no sentinel, such as reconciliation failures
// surfaced by a retry.
func mapErrorKind(kind sync.ErrorKind) string {
	switch kind {
	case sync.ErrorKindValidation, sync.ErrorKindTransform:
		return ErrCodeValidation
	case sync.ErrorKindDuplicate:
		return ErrCodeAlreadyExists
	case sync.ErrorKindConstraint:
		return ErrCodeConflict
	case sync.ErrorKindLookup:
		return ErrCodeNotFound
	case sync.ErrorKindMissingDependency:
		return ErrCodeInvalidState
	case sync.ErrorKindConnection:
		return ErrCodeUpstream
	case sync.ErrorKindAuth:
		return ErrCodeUpstreamAuth
	default:
		return ErrCodeInternal
	}
}
