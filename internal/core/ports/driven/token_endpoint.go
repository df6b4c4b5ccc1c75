package driven

import (
	"context"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

// TokenEndpoint talks to the provider's OAuth token endpoint as a public
// client: it never sends a client secret.
type TokenEndpoint interface {
	// Exchange trades an authorization code for tokens (grant_type=authorization_code).
	// A non-2xx answer is returned as *domain.TokenEndpointError.
	Exchange(ctx context.Context, req ExchangeRequest) (*domain.TokenGrant, error)

	// Refresh obtains new tokens (grant_type=refresh_token).
	// A non-2xx answer is returned as *domain.TokenEndpointError with Refresh set.
	Refresh(ctx context.Context, req RefreshRequest) (*domain.TokenGrant, error)
}

// ExchangeRequest holds the authorization_code grant parameters.
type ExchangeRequest struct {
	TokenURL     string
	ClientID     string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// RefreshRequest holds the refresh_token grant parameters.
type RefreshRequest struct {
	TokenURL     string
	ClientID     string
	RefreshToken string
}
