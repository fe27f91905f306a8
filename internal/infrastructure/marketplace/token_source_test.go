package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// mockAccountRepo is a map-backed AccountRepository for token source tests
type mockAccountRepo struct {
	mu       gosync.Mutex
	accounts map[uuid.UUID]*sync.Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[uuid.UUID]*sync.Account)}
}

func (r *mockAccountRepo) FindByID(ctx context.Context, id uuid.UUID) (*sync.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sync.ErrAccountNotFound
}

func (r *mockAccountRepo) FindByScope(ctx context.Context, scope string) (*sync.Account, error) {
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

func (r *mockAccountRepo) FindByExternalUserID(ctx context.Context, externalUserID string) (*sync.Account, error) {
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

func (r *mockAccountRepo) FindConnected(ctx context.Context) ([]sync.Account, error) {
	return nil, nil
}

func (r *mockAccountRepo) FindAll(ctx context.Context) ([]sync.Account, error) {
	return nil, nil
}

func (r *mockAccountRepo) Save(ctx context.Context, account *sync.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *mockAccountRepo) UpdateTokenGrant(ctx context.Context, id uuid.UUID, grant sync.TokenGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return sync.ErrAccountNotFound
	}
	a.ApplyTokenGrant(grant.AccessToken, grant.RefreshToken, grant.ExpiresAt)
	return nil
}

func (r *mockAccountRepo) UpdateState(ctx context.Context, id uuid.UUID, state sync.ConnectionState, lastError string) error {
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

// tokenEndpoint is a fake provider token endpoint counting grant requests
type tokenEndpoint struct {
	mu       gosync.Mutex
	refreshes int
	fail      bool
}

func (e *tokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		e.mu.Lock()
		if r.Form.Get("grant_type") == "refresh_token" {
			e.refreshes++
		}
		fail := e.fail
		e.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "refresh token revoked",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
			"user_id":       "seller-42",
		})
	}
}

func (e *tokenEndpoint) refreshCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshes
}

type tokenSourceFixture struct {
	source   *TokenSource
	repo     *mockAccountRepo
	endpoint *tokenEndpoint
	account  *sync.Account
}

func newTokenSourceFixture(t *testing.T, tokenExpiry time.Time) *tokenSourceFixture {
	t.Helper()

	endpoint := &tokenEndpoint{}
	server := httptest.NewServer(endpoint.handler())
	t.Cleanup(server.Close)

	repo := newMockAccountRepo()
	account, err := sync.NewAccount("acct-1", "seller-42", "old-access", "old-refresh", tokenExpiry)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), account))

	config := NewProviderConfig(server.URL, server.URL+"/oauth/token", "client-id", "client-secret")
	source, err := NewTokenSource(config, repo, zap.NewNop())
	require.NoError(t, err)

	return &tokenSourceFixture{source: source, repo: repo, endpoint: endpoint, account: account}
}

func TestTokenSource_ValidToken(t *testing.T) {
	ctx := context.Background()

	t.Run("valid stored token is reused without a refresh", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(time.Hour))

		token, err := f.source.ValidToken(ctx, f.account)
		require.NoError(t, err)

		assert.Equal(t, "old-access", token)
		assert.Zero(t, f.endpoint.refreshCount())
	})

	t.Run("expired token triggers exactly one refresh for back-to-back calls", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(-time.Minute))

		first, err := f.source.ValidToken(ctx, f.account)
		require.NoError(t, err)
		second, err := f.source.ValidToken(ctx, f.account)
		require.NoError(t, err)

		assert.Equal(t, "new-access", first)
		assert.Equal(t, "new-access", second)
		assert.Equal(t, 1, f.endpoint.refreshCount())
	})

	t.Run("concurrent callers share one refresh", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(-time.Minute))

		var wg gosync.WaitGroup
		tokens := make([]string, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// Each goroutine works on its own copy, as separate
				// requests would
				account, err := f.repo.FindByID(ctx, f.account.ID)
				if err != nil {
					return
				}
				tokens[i], _ = f.source.ValidToken(ctx, account)
			}(i)
		}
		wg.Wait()

		for _, token := range tokens {
			assert.Equal(t, "new-access", token)
		}
		assert.Equal(t, 1, f.endpoint.refreshCount())
	})
}

func TestTokenSource_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the new triple atomically", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(-time.Minute))

		token, err := f.source.Refresh(ctx, f.account)
		require.NoError(t, err)
		assert.Equal(t, "new-access", token)

		stored, err := f.repo.FindByID(ctx, f.account.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-access", stored.AccessToken)
		assert.Equal(t, "new-refresh", stored.RefreshToken)
		assert.True(t, stored.TokenValid(time.Now()))
		assert.Equal(t, sync.ConnectionStateConnected, stored.State)
	})

	t.Run("failed refresh leaves the stored grant untouched", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(-time.Minute))
		f.endpoint.fail = true

		_, err := f.source.Refresh(ctx, f.account)

		require.Error(t, err)
		assert.Equal(t, sync.ErrorKindAuth, sync.KindOf(err))
		assert.ErrorIs(t, err, sync.ErrRefreshFailed)

		stored, findErr := f.repo.FindByID(ctx, f.account.ID)
		require.NoError(t, findErr)
		assert.Equal(t, "old-access", stored.AccessToken)
		assert.Equal(t, "old-refresh", stored.RefreshToken)
		assert.Equal(t, sync.ConnectionStateError, stored.State)
		assert.NotEmpty(t, stored.LastError)
	})

	t.Run("unreachable token endpoint classifies as connection", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(-time.Minute))
		f.source.config.TokenURL = "http://127.0.0.1:1/oauth/token"

		_, err := f.source.Refresh(ctx, f.account)
		assert.Equal(t, sync.ErrorKindConnection, sync.KindOf(err))
	})
}

func TestTokenSource_ExchangeCode(t *testing.T) {
	ctx := context.Background()

	t.Run("exchanges a callback code for a grant", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(time.Hour))

		grant, err := f.source.ExchangeCode(ctx, "oauth-code")
		require.NoError(t, err)

		assert.Equal(t, "new-access", grant.AccessToken)
		assert.Equal(t, "new-refresh", grant.RefreshToken)
		assert.Equal(t, "seller-42", grant.ExternalUserID)
		assert.True(t, grant.ExpiresAt.After(time.Now()))
	})

	t.Run("empty code is rejected locally", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(time.Hour))

		_, err := f.source.ExchangeCode(ctx, "")
		assert.ErrorIs(t, err, sync.ErrRefreshFailed)
		assert.Zero(t, f.endpoint.refreshCount())
	})

	t.Run("rejected code surfaces as auth error", func(t *testing.T) {
		f := newTokenSourceFixture(t, time.Now().Add(time.Hour))
		f.endpoint.fail = true

		_, err := f.source.ExchangeCode(ctx, "bad-code")
		assert.Equal(t, sync.ErrorKindAuth, sync.KindOf(err))
	})
}
