package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ConnectionState
// ---------------------------------------------------------------------------

// ConnectionState represents the state of a marketplace account connection
type ConnectionState string

const (
	// ConnectionStateDisconnected indicates the account has no usable grant
	ConnectionStateDisconnected ConnectionState = "DISCONNECTED"
	// ConnectionStateConnected indicates the account holds a valid grant
	ConnectionStateConnected ConnectionState = "CONNECTED"
	// ConnectionStateError indicates the last refresh or call failed
	ConnectionStateError ConnectionState = "ERROR"
)

// IsValid returns true if the connection state is valid
func (s ConnectionState) IsValid() bool {
	switch s {
	case ConnectionStateDisconnected, ConnectionStateConnected, ConnectionStateError:
		return true
	default:
		return false
	}
}

// String returns the string representation of ConnectionState
func (s ConnectionState) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Account Entity
// ---------------------------------------------------------------------------

// tokenExpirySkew is subtracted from the stored expiry when judging token
// validity, so a token about to expire mid-request is refreshed up front.
const tokenExpirySkew = 30 * time.Second

// Account represents one authenticated connection to the marketplace.
// The Scope is the namespacing identifier under which all ID mappings,
// sync errors and logs of this connection live.
type Account struct {
	// ID is the unique identifier of this account
	ID uuid.UUID
	// Scope namespaces every mapping and error created for this account
	Scope string
	// ExternalUserID is the marketplace's identifier for the seller/user
	ExternalUserID string
	// DisplayName is a human-readable label for operators
	DisplayName string
	// AccessToken is the current bearer token
	AccessToken string
	// RefreshToken is the long-lived refresh credential
	RefreshToken string
	// TokenExpiresAt is when the access token expires
	TokenExpiresAt time.Time
	// State is the connection state
	State ConnectionState
	// LastError holds the last auth or gateway error message
	LastError string
	// LastSyncAt is when the last orchestrator pass for this account finished
	LastSyncAt *time.Time
	// CreatedAt is when the account was connected
	CreatedAt time.Time
	// UpdatedAt is when the account was last modified
	UpdatedAt time.Time
}

// NewAccount creates a new account from a completed OAuth handshake
func NewAccount(scope, externalUserID, accessToken, refreshToken string, expiresAt time.Time) (*Account, error) {
	if scope == "" {
		return nil, ErrAccountInvalidScope
	}
	if externalUserID == "" {
		return nil, errors.New("sync: external user id is required")
	}
	if accessToken == "" || refreshToken == "" {
		return nil, errors.New("sync: access and refresh tokens are required")
	}

	now := time.Now()
	return &Account{
		ID:             uuid.New(),
		Scope:          scope,
		ExternalUserID: externalUserID,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: expiresAt,
		State:          ConnectionStateConnected,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// TokenValid returns true if the access token is usable at the given instant
func (a *Account) TokenValid(now time.Time) bool {
	if a.AccessToken == "" {
		return false
	}
	return now.Before(a.TokenExpiresAt.Add(-tokenExpirySkew))
}

// ApplyTokenGrant replaces the token triple after a successful refresh or
// code exchange. The three values always change together; persisting them
// field by field would risk interleaved partial grants.
func (a *Account) ApplyTokenGrant(accessToken, refreshToken string, expiresAt time.Time) {
	a.AccessToken = accessToken
	a.RefreshToken = refreshToken
	a.TokenExpiresAt = expiresAt
	a.State = ConnectionStateConnected
	a.LastError = ""
	a.UpdatedAt = time.Now()
}

// MarkError records a failed refresh or gateway call
func (a *Account) MarkError(msg string) {
	a.State = ConnectionStateError
	a.LastError = msg
	a.UpdatedAt = time.Now()
}

// Disconnect deactivates the account. Accounts are never hard-deleted; the
// scope keeps its mappings and error history for auditing.
func (a *Account) Disconnect() {
	a.State = ConnectionStateDisconnected
	a.AccessToken = ""
	a.RefreshToken = ""
	a.UpdatedAt = time.Now()
}

// RecordSyncPass stamps the completion time of an orchestrator pass
func (a *Account) RecordSyncPass(at time.Time) {
	a.LastSyncAt = &at
	a.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// TokenGrant Value Object
// ---------------------------------------------------------------------------

// TokenGrant is the result of a token endpoint exchange
type TokenGrant struct {
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	ExternalUserID string
}

// ---------------------------------------------------------------------------
// AccountRepository Interfaces
// ---------------------------------------------------------------------------

// AccountReader defines the interface for reading accounts
type AccountReader interface {
	// FindByID finds an account by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// FindByScope finds the account owning a scope
	FindByScope(ctx context.Context, scope string) (*Account, error)

	// FindByExternalUserID finds an account by the marketplace user id
	FindByExternalUserID(ctx context.Context, externalUserID string) (*Account, error)
}

// AccountFinder defines the interface for listing accounts
type AccountFinder interface {
	// FindConnected returns all accounts in the connected state
	FindConnected(ctx context.Context) ([]Account, error)

	// FindAll returns all accounts regardless of state
	FindAll(ctx context.Context) ([]Account, error)
}

// AccountWriter defines the interface for persisting accounts
type AccountWriter interface {
	// Save creates or updates an account
	Save(ctx context.Context, account *Account) error

	// UpdateTokenGrant atomically replaces the token triple and connection
	// state of an account in a single write. Last successful write wins.
	UpdateTokenGrant(ctx context.Context, id uuid.UUID, grant TokenGrant) error

	// UpdateState updates the connection state and last error message
	UpdateState(ctx context.Context, id uuid.UUID, state ConnectionState, lastError string) error
}

// AccountRepository defines the full interface for account persistence
type AccountRepository interface {
	AccountReader
	AccountFinder
	AccountWriter
}

// ---------------------------------------------------------------------------
// TokenSource Port
// ---------------------------------------------------------------------------

// TokenSource manages the token lifecycle of an account. Implementations
// exchange refresh tokens at the provider's token endpoint and persist the
// new grant before exposing it.
type TokenSource interface {
	// ValidToken returns a non-expired access token for the account,
	// refreshing synchronously if the stored one has expired.
	ValidToken(ctx context.Context, account *Account) (string, error)

	// Refresh exchanges the refresh token for a new grant. On failure the
	// stored (expired) grant is left untouched and the error surfaces with
	// an auth classification.
	Refresh(ctx context.Context, account *Account) (string, error)
}
