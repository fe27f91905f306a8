package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// staticTokenSource hands out a fixed token and counts forced refreshes
type staticTokenSource struct {
	token      string
	refreshErr error
	refreshes  int
}

func (s *staticTokenSource) ValidToken(ctx context.Context, account *sync.Account) (string, error) {
	return s.token, nil
}

func (s *staticTokenSource) Refresh(ctx context.Context, account *sync.Account) (string, error) {
	s.refreshes++
	if s.refreshErr != nil {
		return "", s.refreshErr
	}
	s.token = "refreshed-token"
	return s.token, nil
}

func testAccount(t *testing.T) *sync.Account {
	t.Helper()
	account, err := sync.NewAccount("acct-1", "seller-42", "stale-token", "refresh", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return account
}

func newTestClient(t *testing.T, baseURL string, tokens sync.TokenSource) *Client {
	t.Helper()
	config := NewProviderConfig(baseURL, baseURL+"/oauth/token", "client-id", "client-secret")
	client, err := NewClient(config, tokens, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestClient_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("passes bearer token and returns the response", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		tokens := &staticTokenSource{token: "stale-token"}
		client := newTestClient(t, server.URL, tokens)

		resp, err := client.Do(ctx, testAccount(t), &sync.GatewayRequest{Method: http.MethodGet, Path: "/v1/ping"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "Bearer stale-token", gotAuth)
		assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
		assert.Zero(t, tokens.refreshes)
	})

	t.Run("401 then 200 refreshes once and retries once", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if r.Header.Get("Authorization") != "Bearer refreshed-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		tokens := &staticTokenSource{token: "stale-token"}
		client := newTestClient(t, server.URL, tokens)

		resp, err := client.Do(ctx, testAccount(t), &sync.GatewayRequest{Method: http.MethodGet, Path: "/v1/orders"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 1, tokens.refreshes)
	})

	t.Run("second 401 is terminal, no refresh loop", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		tokens := &staticTokenSource{token: "stale-token"}
		client := newTestClient(t, server.URL, tokens)

		_, err := client.Do(ctx, testAccount(t), &sync.GatewayRequest{Method: http.MethodGet, Path: "/v1/orders"})

		assert.ErrorIs(t, err, sync.ErrGatewayUnauthorized)
		assert.Equal(t, sync.ErrorKindAuth, sync.KindOf(err))
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 1, tokens.refreshes)
	})

	t.Run("failed forced refresh surfaces without a retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		tokens := &staticTokenSource{token: "stale-token", refreshErr: sync.ErrRefreshFailed}
		client := newTestClient(t, server.URL, tokens)

		_, err := client.Do(ctx, testAccount(t), &sync.GatewayRequest{Method: http.MethodGet, Path: "/v1/orders"})
		assert.ErrorIs(t, err, sync.ErrRefreshFailed)
	})

	t.Run("transport failure classifies as connection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // refuse connections

		client := newTestClient(t, server.URL, &staticTokenSource{token: "tok"})

		_, err := client.Do(ctx, testAccount(t), &sync.GatewayRequest{Method: http.MethodGet, Path: "/v1/orders"})

		assert.Equal(t, sync.ErrorKindConnection, sync.KindOf(err))
		assert.ErrorIs(t, err, sync.ErrGatewayConnection)
	})

	t.Run("other error statuses surface unretried", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		tokens := &staticTokenSource{token: "tok"}
		client := newTestClient(t, server.URL, tokens)

		resp, err := client.Do(ctx, testAccount(t), &sync.GatewayRequest{Method: http.MethodGet, Path: "/v1/orders"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, 1, attempts)
		assert.Zero(t, tokens.refreshes)
	})
}

func TestClient_ListPage(t *testing.T) {
	ctx := context.Background()

	t.Run("parses the listing envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			assert.Equal(t, "50", r.URL.Query().Get("page_size"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"items":[{"id":"999","number":"SO-999"}],"total":51,"page":2,"has_more":false}`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, &staticTokenSource{token: "tok"})

		page, err := client.ListPage(ctx, testAccount(t), "/v1/orders", 2, 50)
		require.NoError(t, err)

		require.Len(t, page.Records, 1)
		id, _ := page.Records[0].GetString("id")
		assert.Equal(t, "999", id)
		assert.EqualValues(t, 51, page.Total)
		assert.False(t, page.HasMore)
	})

	t.Run("non-200 listing is a request failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, &staticTokenSource{token: "tok"})

		_, err := client.ListPage(ctx, testAccount(t), "/v1/orders", 1, 50)
		assert.ErrorIs(t, err, sync.ErrGatewayRequestFailed)
	})

	t.Run("malformed listing body is an invalid reply", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, &staticTokenSource{token: "tok"})

		_, err := client.ListPage(ctx, testAccount(t), "/v1/orders", 1, 50)
		assert.ErrorIs(t, err, sync.ErrGatewayInvalidReply)
	})
}
