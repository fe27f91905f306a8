package marketplace

import (
	"github.com/erp/marketsync/internal/domain/sync"
)

// tokenResponse is the provider's token endpoint reply
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	UserID           string `json:"user_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// listEnvelope is the provider's standard paginated listing reply
type listEnvelope struct {
	Items   []sync.SourceRecord `json:"items"`
	Total   int64               `json:"total"`
	Page    int                 `json:"page"`
	HasMore bool                `json:"has_more"`
}
