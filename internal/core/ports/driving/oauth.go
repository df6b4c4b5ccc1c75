package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// OAuthService runs the PKCE authorization flow against a user's tenant.
type OAuthService interface {
	// Authorize starts a flow: it generates the PKCE verifier, challenge and
	// state, stores the session and returns the provider redirect URL.
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResponse, error)

	// BuildAuthorizationURL composes the provider authorize URL for the user.
	// Returns domain.ErrConfigurationMissing if the user has no tenant config.
	BuildAuthorizationURL(ctx context.Context, userID, codeChallenge, state string) (string, error)

	// Callback validates the redirect, exchanges the code and stores the token record.
	Callback(ctx context.Context, req CallbackRequest) (*CallbackResponse, error)

	// ExchangeCodeForToken trades an authorization code for tokens without persisting them.
	ExchangeCodeForToken(ctx context.Context, userID, code, codeVerifier, state string) (*domain.TokenGrant, error)
}

// AuthorizeRequest represents a request to start an OAuth flow.
// @Description Request to start OAuth authorization flow
type AuthorizeRequest struct {
	UserID string `json:"-"`
}

// AuthorizeResponse contains the authorization URL and state.
// @Description Response containing the OAuth authorization URL
type AuthorizeResponse struct {
	// AuthorizationURL is the provider URL to redirect the user to.
	AuthorizationURL string `json:"authorization_url" example:"https://1234567.app.netsuite.com/app/login/oauth2/authorize.nl?client_id=..."`

	// State is the CSRF token that will be returned in the callback.
	State string `json:"state" example:"y2gq6b0w..."`

	// ExpiresAt is when the authorization attempt expires.
	ExpiresAt time.Time `json:"expires_at"`
}

// CallbackRequest represents the provider redirect back to us.
// ExpectedState is the state bound to the user's browser when the flow started.
type CallbackRequest struct {
	Code             string
	State            string
	ExpectedState    string
	Error            string
	ErrorDescription string
}

// CallbackResponse contains the result of a successful callback.
// @Description Response after successful OAuth authorization
type CallbackResponse struct {
	UserID    string               `json:"user_id"`
	TenantID  string               `json:"tenant_id"`
	ExpiresAt time.Time            `json:"expires_at"`
	FlowState domain.AuthFlowState `json:"flow_state"`
}
