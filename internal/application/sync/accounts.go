package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// CodeExchanger exchanges an OAuth callback code at the provider's token
// endpoint. Implemented by the marketplace token source.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*sync.TokenGrant, error)
}

// AccountService handles the marketplace account lifecycle: the OAuth connect
// flow, disconnection and listing.
type AccountService struct {
	accounts  sync.AccountRepository
	exchanger CodeExchanger
	log       *zap.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(accounts sync.AccountRepository, exchanger CodeExchanger, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		accounts:  accounts,
		exchanger: exchanger,
		log:       log,
	}
}

// Connect completes the OAuth handshake for a scope: the callback code is
// exchanged for a grant and the account row is created, or reactivated when
// the scope was connected before.
func (s *AccountService) Connect(ctx context.Context, scope, displayName, code string) (*sync.Account, error) {
	if scope == "" {
		return nil, sync.ErrAccountInvalidScope
	}

	grant, err := s.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByScope(ctx, scope)
	switch {
	case err == nil:
		if account.ExternalUserID != grant.ExternalUserID {
			return nil, fmt.Errorf("%w: scope %s belongs to a different marketplace user", sync.ErrAccountInvalidScope, scope)
		}
		account.ApplyTokenGrant(grant.AccessToken, grant.RefreshToken, grant.ExpiresAt)
		if displayName != "" {
			account.DisplayName = displayName
		}
	case errors.Is(err, sync.ErrAccountNotFound):
		account, err = sync.NewAccount(scope, grant.ExternalUserID, grant.AccessToken, grant.RefreshToken, grant.ExpiresAt)
		if err != nil {
			return nil, err
		}
		account.DisplayName = displayName
	default:
		return nil, err
	}

	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	s.log.Info("account connected",
		zap.String("scope", account.Scope),
		zap.String("external_user_id", account.ExternalUserID),
	)
	return account, nil
}

// Disconnect deactivates an account. Its scope keeps all mappings and error
// history.
func (s *AccountService) Disconnect(ctx context.Context, id uuid.UUID) (*sync.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	account.Disconnect()
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}

	s.log.Info("account disconnected", zap.String("scope", account.Scope))
	return account, nil
}

// Get returns one account by id
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*sync.Account, error) {
	return s.accounts.FindByID(ctx, id)
}

// List returns all accounts regardless of state
func (s *AccountService) List(ctx context.Context) ([]sync.Account, error) {
	return s.accounts.FindAll(ctx)
}
