package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven/mocks"
)

const (
	testUserID   = "user-1"
	testTenantID = "1234567_SB1"
	testClientID = "client-abc"
	testBaseURL  = "https://bridge.example.com"
)

var testEndpoints = domain.EndpointTemplates{
	Authorize: "https://{tenant}.app.example.com/oauth2/authorize",
	Token:     "https://{tenant}.api.example.com/oauth2/token",
	MCP:       "https://{tenant}.api.example.com/mcp/v1",
}

// fixture wires the in-memory stores shared by service tests.
type fixture struct {
	tokens   *mocks.MockTokenStore
	sessions *mocks.MockPKCESessionStore
	tenants  *mocks.MockTenantConfigStore
	endpoint *mocks.MockTokenEndpoint
	lock     *mocks.MockDistributedLock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tokens:   mocks.NewMockTokenStore(),
		sessions: mocks.NewMockPKCESessionStore(),
		tenants:  mocks.NewMockTenantConfigStore(),
		endpoint: mocks.NewMockTokenEndpoint(),
		lock:     mocks.NewMockDistributedLock(),
	}
	require.NoError(t, f.tenants.Save(context.Background(), &domain.TenantConfig{
		UserID:   testUserID,
		TenantID: testTenantID,
		ClientID: testClientID,
		Scope:    "mcp",
	}))
	return f
}

// seedToken stores a record expiring after ttl.
func (f *fixture) seedToken(accessToken string, ttl time.Duration) {
	now := time.Now()
	f.tokens.Put(&domain.TokenRecord{
		UserID:       testUserID,
		TenantID:     testTenantID,
		AccessToken:  accessToken,
		RefreshToken: "RT0",
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now.Add(-time.Hour),
		UpdatedAt:    now.Add(-time.Hour),
	})
}

func (f *fixture) tokenManager(opts ...func(*TokenManagerConfig)) *TokenManager {
	cfg := TokenManagerConfig{
		TokenStore:        f.tokens,
		TenantConfigStore: f.tenants,
		TokenEndpoint:     f.endpoint,
		Endpoints:         testEndpoints,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewTokenManager(cfg)
}

func (f *fixture) oauthService() *oauthService {
	return NewOAuthService(OAuthServiceConfig{
		TenantConfigStore: f.tenants,
		SessionStore:      f.sessions,
		TokenStore:        f.tokens,
		TokenEndpoint:     f.endpoint,
		Endpoints:         testEndpoints,
		BaseURL:           testBaseURL,
		DefaultScope:      "default",
	}).(*oauthService)
}
