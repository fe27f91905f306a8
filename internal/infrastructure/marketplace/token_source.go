package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// TokenSource implements sync.TokenSource against the provider's OAuth token
// endpoint. Refreshes are serialized per account: when several callers hit an
// expired token back to back, exactly one refresh request leaves the process
// and the rest reuse its result.
type TokenSource struct {
	config     *ProviderConfig
	accounts   sync.AccountRepository
	httpClient *http.Client
	log        *zap.Logger

	mu    gosync.Mutex
	locks map[uuid.UUID]*gosync.Mutex
}

var _ sync.TokenSource = (*TokenSource)(nil)

// NewTokenSource creates a new TokenSource
func NewTokenSource(config *ProviderConfig, accounts sync.AccountRepository, log *zap.Logger) (*TokenSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenSource{
		config:   config,
		accounts: accounts,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		log:   log,
		locks: make(map[uuid.UUID]*gosync.Mutex),
	}, nil
}

// ValidToken returns a usable access token, refreshing synchronously when the
// stored one has expired.
func (s *TokenSource) ValidToken(ctx context.Context, account *sync.Account) (string, error) {
	if account.TokenValid(time.Now()) {
		return account.AccessToken, nil
	}
	return s.Refresh(ctx, account)
}

// Refresh exchanges the account's refresh token for a new grant and persists
// the triple atomically. The caller's account is updated in place. On failure
// the stored grant stays untouched and the account flips to the error state.
func (s *TokenSource) Refresh(ctx context.Context, account *sync.Account) (string, error) {
	lock := s.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	// A competing caller may have refreshed while we waited for the lock;
	// re-read and reuse its grant instead of burning the refresh token again.
	fresh, err := s.accounts.FindByID(ctx, account.ID)
	if err != nil {
		return "", err
	}
	if fresh.TokenValid(time.Now()) && fresh.AccessToken != account.AccessToken {
		*account = *fresh
		return account.AccessToken, nil
	}
	*account = *fresh

	if account.RefreshToken == "" {
		return "", fmt.Errorf("%w: account %s has no refresh token", sync.ErrRefreshFailed, account.Scope)
	}

	grant, err := s.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {account.RefreshToken},
	})
	if err != nil {
		account.MarkError(err.Error())
		if stateErr := s.accounts.UpdateState(ctx, account.ID, account.State, account.LastError); stateErr != nil {
			s.log.Error("failed to persist account error state", zap.Error(stateErr), zap.String("scope", account.Scope))
		}
		return "", err
	}

	if grant.ExternalUserID == "" {
		grant.ExternalUserID = account.ExternalUserID
	}
	if err := s.accounts.UpdateTokenGrant(ctx, account.ID, *grant); err != nil {
		return "", err
	}
	account.ApplyTokenGrant(grant.AccessToken, grant.RefreshToken, grant.ExpiresAt)

	s.log.Info("access token refreshed",
		zap.String("scope", account.Scope),
		zap.Time("expires_at", grant.ExpiresAt),
	)
	return account.AccessToken, nil
}

// ExchangeCode exchanges an OAuth callback code for an initial grant
func (s *TokenSource) ExchangeCode(ctx context.Context, code string) (*sync.TokenGrant, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", sync.ErrRefreshFailed)
	}
	return s.requestToken(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	})
}

// requestToken posts a form-encoded grant request to the token endpoint
func (s *TokenSource) requestToken(ctx context.Context, form url.Values) (*sync.TokenGrant, error) {
	form.Set("client_id", s.config.ClientID)
	form.Set("client_secret", s.config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, sync.Wrap(sync.ErrorKindConnection, "token endpoint unreachable",
			fmt.Errorf("%w: %v", sync.ErrGatewayConnection, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to read token response: %w", err)
	}

	s.log.Debug("token endpoint call",
		zap.String("url", s.config.TokenURL),
		zap.String("grant_type", form.Get("grant_type")),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: token endpoint returned malformed JSON: %v", sync.ErrGatewayInvalidReply, err)
	}

	if resp.StatusCode != http.StatusOK || tr.Error != "" {
		return nil, sync.Wrap(sync.ErrorKindAuth,
			fmt.Sprintf("token endpoint returned HTTP %d: %s %s", resp.StatusCode, tr.Error, tr.ErrorDescription),
			sync.ErrRefreshFailed)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token endpoint omitted tokens", sync.ErrGatewayInvalidReply)
	}

	return &sync.TokenGrant{
		AccessToken:    tr.AccessToken,
		RefreshToken:   tr.RefreshToken,
		ExpiresAt:      time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		ExternalUserID: tr.UserID,
	}, nil
}

func (s *TokenSource) accountLock(id uuid.UUID) *gosync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &gosync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
