package gotrue

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-authstate"
)

// Config holds the hosted platform connection settings.
type Config struct {
	// BaseURL is the auth endpoint root, e.g.
	// "https://<project>.supabase.co/auth/v1".
	BaseURL string

	// APIKey is the project's public (anon) API key, sent on every request.
	APIKey string

	// JWTSecret verifies access tokens signed with the project's shared
	// HS256 secret. Leave empty to use JWKSURL instead.
	JWTSecret string

	// JWKSURL is the platform's JWK Set endpoint for asymmetric tokens.
	JWKSURL string

	// Audience the access token must carry, e.g. "authenticated". Optional.
	Audience string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// RefreshLeeway is how long before expiry the access token is rotated.
	// Default: 60 seconds.
	RefreshLeeway time.Duration

	// RetryInterval is the wait before retrying a failed refresh whose token
	// has not expired yet. Default: 10 seconds.
	RetryInterval time.Duration

	Logger authstate.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:       baseURL,
		APIKey:        apiKey,
		RefreshLeeway: 60 * time.Second,
		RetryInterval: 10 * time.Second,
	}
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
}
