package platform

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// defaultScope is the resource scope requested for platform API tokens.
const defaultScope = "https://graph.microsoft.com/.default"

// AccessTokenSource supplies bearer tokens for outbound platform requests,
// scoped to a tenant.
type AccessTokenSource interface {
	AccessToken(ctx context.Context, tenant string) (string, error)
}

// TokenProvider acquires OAuth2 client-credentials tokens per tenant and
// caches a refreshing token source for each.
type TokenProvider struct {
	appID     string
	appSecret string
	endpoint  func(tenant string) string

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewTokenProvider creates a token provider. endpoint maps a tenant id to
// its OAuth2 token URL; an empty tenant is the caller's problem to default.
func NewTokenProvider(appID, appSecret string, endpoint func(tenant string) string) *TokenProvider {
	return &TokenProvider{
		appID:     appID,
		appSecret: appSecret,
		endpoint:  endpoint,
		sources:   make(map[string]oauth2.TokenSource),
	}
}

// AccessToken returns a valid bearer token for the tenant, fetching or
// refreshing through the cached source as needed.
func (p *TokenProvider) AccessToken(ctx context.Context, tenant string) (string, error) {
	p.mu.Lock()
	src, ok := p.sources[tenant]
	if !ok {
		cfg := &clientcredentials.Config{
			ClientID:     p.appID,
			ClientSecret: p.appSecret,
			TokenURL:     p.endpoint(tenant),
			Scopes:       []string{defaultScope},
		}
		src = cfg.TokenSource(context.Background())
		p.sources[tenant] = src
	}
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("acquiring token for tenant %q: %w", tenant, err)
	}
	return tok.AccessToken, nil
}
