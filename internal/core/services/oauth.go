package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
	"github.com/custodia-labs/toolbridge/internal/metrics"
)

// Ensure oauthService implements OAuthService
var _ driving.OAuthService = (*oauthService)(nil)

// CallbackPath is where the provider redirects after authorization.
const CallbackPath = "/api/v1/oauth/callback"

// OAuthServiceConfig holds configuration for the OAuth service.
type OAuthServiceConfig struct {
	// TenantConfigStore provides the tenant and client id per user.
	TenantConfigStore driven.TenantConfigStore

	// SessionStore manages in-flight PKCE sessions.
	SessionStore driven.PKCESessionStore

	// TokenStore persists the token record after a successful exchange.
	TokenStore driven.TokenStore

	// TokenEndpoint performs the code exchange.
	TokenEndpoint driven.TokenEndpoint

	// Endpoints are the provider URL templates.
	Endpoints domain.EndpointTemplates

	// BaseURL is the application base URL for OAuth callbacks.
	// Example: "https://bridge.example.com" or "http://localhost:8080"
	BaseURL string

	// DefaultScope is requested when the tenant config has no scope.
	DefaultScope string

	Logger  *slog.Logger
	Metrics *metrics.Recorder

	// Now overrides the clock in tests.
	Now func() time.Time
}

// oauthService implements the OAuthService interface.
type oauthService struct {
	tenantConfigStore driven.TenantConfigStore
	sessionStore      driven.PKCESessionStore
	tokenStore        driven.TokenStore
	tokenEndpoint     driven.TokenEndpoint
	endpoints         domain.EndpointTemplates
	redirectURI       string
	defaultScope      string
	logger            *slog.Logger
	metrics           *metrics.Recorder
	now               func() time.Time
}

// NewOAuthService creates a new OAuth service.
func NewOAuthService(cfg OAuthServiceConfig) driving.OAuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &oauthService{
		tenantConfigStore: cfg.TenantConfigStore,
		sessionStore:      cfg.SessionStore,
		tokenStore:        cfg.TokenStore,
		tokenEndpoint:     cfg.TokenEndpoint,
		endpoints:         cfg.Endpoints,
		redirectURI:       strings.TrimRight(cfg.BaseURL, "/") + CallbackPath,
		defaultScope:      cfg.DefaultScope,
		logger:            logger.With("component", "oauth"),
		metrics:           cfg.Metrics,
		now:               now,
	}
}

// Authorize starts an OAuth authorization flow.
// It generates PKCE credentials, stores the session, and returns the authorization URL.
func (s *oauthService) Authorize(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error) {
	if req.UserID == "" {
		return nil, domain.ErrInvalidInput
	}
	flow := s.newFlow(req.UserID)

	state, err := GenerateState()
	if err != nil {
		return nil, flow.fail(fmt.Errorf("generate state: %w", err))
	}
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, flow.fail(fmt.Errorf("generate code verifier: %w", err))
	}
	challenge := GenerateCodeChallenge(verifier)

	authURL, err := s.BuildAuthorizationURL(ctx, req.UserID, challenge, state)
	if err != nil {
		return nil, flow.fail(err)
	}

	now := s.now()
	session := &domain.PKCESession{
		State:         state,
		UserID:        req.UserID,
		CodeVerifier:  verifier,
		CodeChallenge: challenge,
		RedirectURI:   s.redirectURI,
		CreatedAt:     now,
		ExpiresAt:     now.Add(domain.PKCESessionTTL),
	}
	if err := s.sessionStore.Save(ctx, session); err != nil {
		return nil, flow.fail(fmt.Errorf("save pkce session: %w", err))
	}
	flow.advance(domain.AuthFlowAuthRequested)

	return &driving.AuthorizeResponse{
		AuthorizationURL: authURL,
		State:            state,
		ExpiresAt:        session.ExpiresAt,
	}, nil
}

// BuildAuthorizationURL composes the tenant's authorize URL.
func (s *oauthService) BuildAuthorizationURL(ctx context.Context, userID, codeChallenge, state string) (string, error) {
	cfg, err := s.tenantConfig(ctx, userID)
	if err != nil {
		return "", err
	}

	authorizeURL := s.endpoints.Resolve(cfg.TenantID).Authorize
	u, err := url.Parse(authorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}

	scope := cfg.Scope
	if scope == "" {
		scope = s.defaultScope
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", s.redirectURI)
	q.Set("scope", scope)
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Callback handles the provider redirect.
// The checks run in a fixed order and none of them is retried.
func (s *oauthService) Callback(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
	flow := s.newFlow("")
	flow.advance(domain.AuthFlowCallbackReceived)

	if req.Error != "" {
		s.metrics.Callback("provider_error")
		return nil, flow.fail(&domain.ProviderError{
			Code:        req.Error,
			Description: req.ErrorDescription,
		})
	}

	if req.ExpectedState == "" {
		s.metrics.Callback("missing_session")
		return nil, flow.fail(domain.ErrMissingSessionData)
	}
	if subtle.ConstantTimeCompare([]byte(req.State), []byte(req.ExpectedState)) != 1 {
		s.metrics.Callback("state_mismatch")
		return nil, flow.fail(domain.ErrStateMismatch)
	}

	// Consume the session (single-use)
	session, err := s.sessionStore.GetAndDelete(ctx, req.State)
	if err != nil {
		s.metrics.Callback("error")
		return nil, flow.fail(fmt.Errorf("get pkce session: %w", err))
	}
	if session == nil || session.CodeVerifier == "" || session.UserID == "" {
		s.metrics.Callback("missing_session")
		return nil, flow.fail(domain.ErrMissingSessionData)
	}
	flow.userID = session.UserID
	flow.advance(domain.AuthFlowStateValidated)

	if req.Code == "" {
		s.metrics.Callback("error")
		return nil, flow.fail(fmt.Errorf("%w: missing authorization code", domain.ErrInvalidInput))
	}

	cfg, err := s.tenantConfig(ctx, session.UserID)
	if err != nil {
		s.metrics.Callback("error")
		return nil, flow.fail(err)
	}

	grant, err := s.exchange(ctx, cfg, req.Code, session.CodeVerifier)
	if err != nil {
		s.metrics.Callback("exchange_failed")
		return nil, flow.fail(err)
	}

	prev, err := s.tokenStore.Get(ctx, session.UserID)
	if err != nil {
		s.metrics.Callback("error")
		return nil, flow.fail(fmt.Errorf("get token record: %w", err))
	}
	if prev != nil && prev.TenantID != cfg.TenantID {
		prev = nil
	}

	record := grant.ApplyTo(prev, session.UserID, cfg.TenantID, s.now())
	if err := s.tokenStore.Save(ctx, record); err != nil {
		s.metrics.Callback("error")
		return nil, flow.fail(fmt.Errorf("save token record: %w", err))
	}
	flow.advance(domain.AuthFlowTokenExchanged)
	s.metrics.Callback("success")

	return &driving.CallbackResponse{
		UserID:    record.UserID,
		TenantID:  record.TenantID,
		ExpiresAt: record.ExpiresAt,
		FlowState: flow.state,
	}, nil
}

// ExchangeCodeForToken trades an authorization code for tokens.
// The caller is responsible for persisting the grant.
func (s *oauthService) ExchangeCodeForToken(ctx context.Context, userID, code, codeVerifier, state string) (*domain.TokenGrant, error) {
	if code == "" || codeVerifier == "" {
		return nil, domain.ErrMissingSessionData
	}
	cfg, err := s.tenantConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("exchanging authorization code", "user_id", userID, "state_len", len(state))
	return s.exchange(ctx, cfg, code, codeVerifier)
}

func (s *oauthService) exchange(ctx context.Context, cfg *domain.TenantConfig, code, codeVerifier string) (*domain.TokenGrant, error) {
	grant, err := s.tokenEndpoint.Exchange(ctx, driven.ExchangeRequest{
		TokenURL:     s.endpoints.Resolve(cfg.TenantID).Token,
		ClientID:     cfg.ClientID,
		Code:         code,
		RedirectURI:  s.redirectURI,
		CodeVerifier: codeVerifier,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTokenExchangeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTokenExchangeFailed, err)
	}
	return grant, nil
}

func (s *oauthService) tenantConfig(ctx context.Context, userID string) (*domain.TenantConfig, error) {
	cfg, err := s.tenantConfigStore.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get tenant config: %w", err)
	}
	if !cfg.IsConfigured() {
		return nil, domain.ErrConfigurationMissing
	}
	return cfg, nil
}

// authFlow tracks and logs the state of one authorization attempt.
type authFlow struct {
	logger *slog.Logger
	userID string
	state  domain.AuthFlowState
}

func (s *oauthService) newFlow(userID string) *authFlow {
	return &authFlow{logger: s.logger, userID: userID, state: domain.AuthFlowInit}
}

func (f *authFlow) advance(next domain.AuthFlowState) {
	if !f.state.CanTransitionTo(next) {
		f.logger.Warn("unexpected auth flow transition", "from", f.state, "to", next, "user_id", f.userID)
	}
	f.logger.Info("auth flow transition", "from", f.state, "to", next, "user_id", f.userID)
	f.state = next
}

// fail moves the flow to FAILED and returns err unchanged.
func (f *authFlow) fail(err error) error {
	f.logger.Warn("auth flow failed", "from", f.state, "user_id", f.userID, "error", err)
	f.state = domain.AuthFlowFailed
	return err
}
