package marketplace

import (
	"errors"
	"strings"
)

// Errors for marketplace provider configuration
var (
	ErrConfigMissingBaseURL      = errors.New("marketplace: base url is required")
	ErrConfigMissingTokenURL     = errors.New("marketplace: token url is required")
	ErrConfigMissingClientID     = errors.New("marketplace: client id is required")
	ErrConfigMissingClientSecret = errors.New("marketplace: client secret is required")
)

// ProviderConfig holds the connection settings for the marketplace API
type ProviderConfig struct {
	// BaseURL is the base URL of the marketplace REST API
	BaseURL string
	// TokenURL is the OAuth token endpoint
	TokenURL string
	// ClientID is the application id registered with the provider
	ClientID string
	// ClientSecret is the application secret
	ClientSecret string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// NewProviderConfig creates a provider configuration with defaults
func NewProviderConfig(baseURL, tokenURL, clientID, clientSecret string) *ProviderConfig {
	return &ProviderConfig{
		BaseURL:        baseURL,
		TokenURL:       tokenURL,
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TimeoutSeconds: 30,
	}
}

// Validate validates the provider configuration and fills defaults
func (c *ProviderConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	if c.TokenURL == "" {
		return ErrConfigMissingTokenURL
	}
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrConfigMissingClientSecret
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
