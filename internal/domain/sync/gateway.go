package sync

import (
	"context"
	"net/http"
	"net/url"
)

// ---------------------------------------------------------------------------
// Gateway Port
// ---------------------------------------------------------------------------

// GatewayRequest describes one outbound marketplace API call
type GatewayRequest struct {
	// Method is the HTTP method
	Method string
	// Path is appended to the provider base URL
	Path string
	// Query holds URL query parameters (optional)
	Query url.Values
	// Body is JSON-encoded when non-nil
	Body any
}

// GatewayResponse is the observed result of a marketplace API call
type GatewayResponse struct {
	// Status is the HTTP status code
	Status int
	// Header holds the response headers
	Header http.Header
	// Body is the raw response body
	Body []byte
}

// Gateway is the port for outbound marketplace API calls. Implementations
// attach the account's bearer token, retry exactly once on 401 after a
// forced refresh, classify transport failures as connection errors, and log
// every request/response pair before the caller observes the result.
type Gateway interface {
	Do(ctx context.Context, account *Account, req *GatewayRequest) (*GatewayResponse, error)
}

// ---------------------------------------------------------------------------
// ResourceLister Port
// ---------------------------------------------------------------------------

// RecordPage is one page of an external resource listing
type RecordPage struct {
	// Records are the decoded source records, in API order
	Records []SourceRecord
	// Total is the total number of records matching the listing
	Total int64
	// HasMore indicates if another page follows
	HasMore bool
	// NextPage is the next page number when HasMore is true
	NextPage int
}

// ResourceLister pages through an external resource listing on behalf of
// the orchestrator.
type ResourceLister interface {
	ListPage(ctx context.Context, account *Account, path string, page, pageSize int) (*RecordPage, error)
}

// ---------------------------------------------------------------------------
// TargetWriter Port
// ---------------------------------------------------------------------------

// TargetWriter is the generic internal record store the reconciler writes
// into. Upsert is keyed by (scope, target type, source table, source id) so
// that replaying a record after a partial failure overwrites instead of
// duplicating; this is the idempotent-write strategy for retries.
type TargetWriter interface {
	// Upsert writes the reconciled fields and returns the internal record
	// id and whether the row was newly created.
	Upsert(ctx context.Context, scope, targetType, sourceTable, sourceID string, fields map[string]any) (int64, bool, error)
}
