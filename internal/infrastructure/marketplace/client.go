package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/erp/marketsync/internal/domain/sync"
)

// maxResponseSize bounds reads of marketplace API responses (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client implements the sync.Gateway and sync.ResourceLister ports against
// the marketplace REST API. Every request carries the account's bearer token;
// a 401 forces one token refresh and one retry, a second 401 is terminal.
type Client struct {
	config     *ProviderConfig
	tokens     sync.TokenSource
	httpClient *http.Client
	log        *zap.Logger
}

var (
	_ sync.Gateway        = (*Client)(nil)
	_ sync.ResourceLister = (*Client)(nil)
)

// NewClient creates a new marketplace API client
func NewClient(config *ProviderConfig, tokens sync.TokenSource, log *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		config: config,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		log: log,
	}, nil
}

// Do executes one marketplace API call on behalf of an account
func (c *Client) Do(ctx context.Context, account *sync.Account, req *sync.GatewayRequest) (*sync.GatewayResponse, error) {
	resp, err := c.attempt(ctx, account, req, false)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		// The stored token may be stale; force one refresh and retry once
		if _, err := c.tokens.Refresh(ctx, account); err != nil {
			return nil, err
		}
		resp, err = c.attempt(ctx, account, req, true)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized {
			return nil, sync.Wrap(sync.ErrorKindAuth,
				"credentials rejected after refresh", sync.ErrGatewayUnauthorized)
		}
	}

	return resp, nil
}

// attempt performs one HTTP exchange and logs the request/response pair
func (c *Client) attempt(ctx context.Context, account *sync.Account, req *sync.GatewayRequest, retried bool) (*sync.GatewayResponse, error) {
	token, err := c.tokens.ValidToken(ctx, account)
	if err != nil {
		return nil, err
	}

	fullURL := c.config.BaseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marketplace: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn("marketplace request failed",
			zap.String("scope", account.Scope),
			zap.String("method", req.Method),
			zap.String("url", fullURL),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, sync.Wrap(sync.ErrorKindConnection, "marketplace unreachable",
			fmt.Errorf("%w: %v", sync.ErrGatewayConnection, err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to read response: %w", err)
	}

	c.log.Info("marketplace request",
		zap.String("scope", account.Scope),
		zap.String("method", req.Method),
		zap.String("url", fullURL),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("retried", retried),
	)

	return &sync.GatewayResponse{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   body,
	}, nil
}

// ListPage fetches one page of a resource listing
func (c *Client) ListPage(ctx context.Context, account *sync.Account, path string, page, pageSize int) (*sync.RecordPage, error) {
	if page < 1 {
		page = 1
	}

	resp, err := c.Do(ctx, account, &sync.GatewayRequest{
		Method: http.MethodGet,
		Path:   path,
		Query: url.Values{
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(pageSize)},
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("%w: listing %s returned HTTP %d", sync.ErrGatewayRequestFailed, path, resp.Status)
	}

	var envelope listEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: listing %s returned malformed JSON: %v", sync.ErrGatewayInvalidReply, path, err)
	}

	return &sync.RecordPage{
		Records:  envelope.Items,
		Total:    envelope.Total,
		HasMore:  envelope.HasMore,
		NextPage: page + 1,
	}, nil
}
