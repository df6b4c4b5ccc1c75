package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
)

// Mock services for testing

type mockAuthService struct {
	validateTokenFn func(ctx context.Context, token string) (*domain.AuthContext, error)
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if m.validateTokenFn != nil {
		return m.validateTokenFn(ctx, token)
	}
	return nil, errors.New("not implemented")
}

type mockOAuthService struct {
	authorizeFn func(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error)
	callbackFn  func(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error)
}

func (m *mockOAuthService) Authorize(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error) {
	if m.authorizeFn != nil {
		return m.authorizeFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOAuthService) BuildAuthorizationURL(ctx context.Context, userID, codeChallenge, state string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockOAuthService) Callback(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
	if m.callbackFn != nil {
		return m.callbackFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOAuthService) ExchangeCodeForToken(ctx context.Context, userID, code, codeVerifier, state string) (*domain.TokenGrant, error) {
	return nil, errors.New("not implemented")
}

type mockTokenService struct {
	statusFn     func(ctx context.Context, userID string) (*domain.ConnectionStatus, error)
	disconnectFn func(ctx context.Context, userID string) error
}

func (m *mockTokenService) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	return "", domain.ErrNotConnected
}

func (m *mockTokenService) Status(ctx context.Context, userID string) (*domain.ConnectionStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return &domain.ConnectionStatus{}, nil
}

func (m *mockTokenService) Disconnect(ctx context.Context, userID string) error {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID)
	}
	return nil
}

type mockToolService struct {
	buildRegistryFn func(ctx context.Context, userID string) (driving.ToolRegistry, error)
	invokeFn        func(ctx context.Context, userID, toolName string, args map[string]any) domain.InvokeResult
}

func (m *mockToolService) DiscoverTools(ctx context.Context, userID string) ([]domain.ToolDescriptor, error) {
	return nil, errors.New("not implemented")
}

func (m *mockToolService) BuildRegistry(ctx context.Context, userID string) (driving.ToolRegistry, error) {
	if m.buildRegistryFn != nil {
		return m.buildRegistryFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockToolService) Invoke(ctx context.Context, userID, toolName string, args map[string]any) domain.InvokeResult {
	if m.invokeFn != nil {
		return m.invokeFn(ctx, userID, toolName, args)
	}
	return domain.InvokeResult{Error: &domain.InvokeError{Kind: domain.InvokeErrorUnknownTool}}
}

type mockTenantService struct {
	getFn    func(ctx context.Context, userID string) (*domain.TenantConfig, error)
	saveFn   func(ctx context.Context, userID string, req driving.SaveTenantConfigRequest) (*domain.TenantConfig, error)
	deleteFn func(ctx context.Context, userID string) error
}

func (m *mockTenantService) Get(ctx context.Context, userID string) (*domain.TenantConfig, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, domain.ErrConfigurationMissing
}

func (m *mockTenantService) Save(ctx context.Context, userID string, req driving.SaveTenantConfigRequest) (*domain.TenantConfig, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, userID, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockTenantService) Delete(ctx context.Context, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID)
	}
	return nil
}

type stubTool struct {
	key, name string
	params    []domain.ParamSpec
}

func (t stubTool) Key() string                        { return t.key }
func (t stubTool) Name() string                       { return t.name }
func (t stubTool) Description() string                { return "stub " + t.name }
func (t stubTool) Params() []domain.ParamSpec         { return t.params }
func (t stubTool) Validate(args map[string]any) error { return nil }
func (t stubTool) Invoke(ctx context.Context, args map[string]any) domain.InvokeResult {
	return domain.InvokeResult{Success: true}
}

type stubRegistry []stubTool

func (r stubRegistry) Tools() []driving.Invocable {
	out := make([]driving.Invocable, len(r))
	for i, t := range r {
		out[i] = t
	}
	return out
}

func (r stubRegistry) Lookup(name string) (driving.Invocable, bool) {
	for _, t := range r {
		if t.key == name || t.name == name {
			return t, true
		}
	}
	return nil, false
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

// withAuth returns req carrying an authenticated caller, as the auth middleware would.
func withAuth(req *http.Request, userID string) *http.Request {
	ctx := context.WithValue(req.Context(), authContextKey, &domain.AuthContext{UserID: userID})
	return req.WithContext(ctx)
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

// Health

func TestHealthHandler(t *testing.T) {
	server := &Server{}
	rr := httptest.NewRecorder()

	server.handleHealth(rr, httptest.NewRequest("GET", "/health", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if got := decodeBody[map[string]string](t, rr)["status"]; got != "ok" {
		t.Errorf("expected status ok, got %q", got)
	}
}

func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		redis      Pinger
		wantStatus int
	}{
		{name: "no dependencies", wantStatus: http.StatusOK},
		{name: "all healthy", db: &mockPinger{}, redis: &mockPinger{}, wantStatus: http.StatusOK},
		{name: "database down", db: &mockPinger{err: errors.New("down")}, wantStatus: http.StatusServiceUnavailable},
		{name: "redis down", db: &mockPinger{}, redis: &mockPinger{err: errors.New("down")}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{db: tt.db, redisClient: tt.redis}
			rr := httptest.NewRecorder()

			server.handleReady(rr, httptest.NewRequest("GET", "/ready", nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	server := &Server{version: "1.2.3"}
	rr := httptest.NewRecorder()

	server.handleVersion(rr, httptest.NewRequest("GET", "/version", nil))

	if got := decodeBody[map[string]string](t, rr)["version"]; got != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", got)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusBadRequest, "bad")

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	if got := decodeBody[ErrorResponse](t, rr).Error; got != "bad" {
		t.Errorf("expected error 'bad', got %q", got)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{&domain.ValidationError{Tool: "t", Fields: []domain.FieldError{{Field: "a", Message: "is required"}}}, http.StatusBadRequest},
		{&domain.ProviderError{Code: "access_denied"}, http.StatusBadRequest},
		{domain.ErrStateMismatch, http.StatusBadRequest},
		{domain.ErrMissingSessionData, http.StatusBadRequest},
		{domain.ErrConfigurationMissing, http.StatusConflict},
		{fmt.Errorf("%w: %w", domain.ErrNotConnected, domain.ErrTokenRefreshFailed), http.StatusConflict},
		{&domain.TokenEndpointError{Status: 400}, http.StatusBadGateway},
		{&domain.ToolHTTPError{Status: 500}, http.StatusBadGateway},
		{&domain.ToolRPCError{Code: -32601, Message: "nope"}, http.StatusBadGateway},
		{domain.ErrToolTimeout, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, tt.err)
			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}

// OAuth

func TestHandleAuthorize_SetsStateCookie(t *testing.T) {
	expiresAt := time.Now().Add(domain.PKCESessionTTL)
	var gotUser string
	server := &Server{
		secureCookies: true,
		oauthService: &mockOAuthService{
			authorizeFn: func(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error) {
				gotUser = req.UserID
				return &driving.AuthorizeResponse{
					AuthorizationURL: "https://tenant.example.com/authorize?state=s1",
					State:            "s1",
					ExpiresAt:        expiresAt,
				}, nil
			},
		},
	}

	req := withAuth(httptest.NewRequest("POST", "/api/v1/oauth/authorize", nil), "user-1")
	rr := httptest.NewRecorder()
	server.handleAuthorize(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if gotUser != "user-1" {
		t.Errorf("expected authorize for user-1, got %q", gotUser)
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != stateCookieName || c.Value != "s1" {
		t.Errorf("unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure {
		t.Error("expected HttpOnly and Secure state cookie")
	}

	resp := decodeBody[driving.AuthorizeResponse](t, rr)
	if resp.State != "s1" {
		t.Errorf("expected state s1, got %q", resp.State)
	}
}

func TestHandleAuthorize_NotConfigured(t *testing.T) {
	server := &Server{
		oauthService: &mockOAuthService{
			authorizeFn: func(ctx context.Context, req driving.AuthorizeRequest) (*driving.AuthorizeResponse, error) {
				return nil, domain.ErrConfigurationMissing
			},
		},
	}

	req := withAuth(httptest.NewRequest("POST", "/api/v1/oauth/authorize", nil), "user-1")
	rr := httptest.NewRecorder()
	server.handleAuthorize(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rr.Code)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Error("expected no state cookie on failure")
	}
}

func TestHandleOAuthCallback_PassesCookieAsExpectedState(t *testing.T) {
	var got driving.CallbackRequest
	server := &Server{
		oauthService: &mockOAuthService{
			callbackFn: func(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
				got = req
				return &driving.CallbackResponse{UserID: "user-1", TenantID: "1234567_SB1", FlowState: domain.AuthFlowTokenExchanged}, nil
			},
		},
	}

	req := httptest.NewRequest("GET", "/api/v1/oauth/callback?code=c1&state=s1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "s1"})
	rr := httptest.NewRecorder()
	server.handleOAuthCallback(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got.Code != "c1" || got.State != "s1" || got.ExpectedState != "s1" {
		t.Errorf("unexpected callback request %+v", got)
	}

	resp := decodeBody[driving.CallbackResponse](t, rr)
	if resp.FlowState != domain.AuthFlowTokenExchanged {
		t.Errorf("expected TOKEN_EXCHANGED, got %s", resp.FlowState)
	}

	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == stateCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected state cookie to be cleared")
	}
}

func TestHandleOAuthCallback_JSONErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "state mismatch", err: domain.ErrStateMismatch, wantStatus: http.StatusBadRequest},
		{name: "missing session", err: domain.ErrMissingSessionData, wantStatus: http.StatusBadRequest},
		{name: "exchange failed", err: &domain.TokenEndpointError{Status: 400, Body: "invalid_grant"}, wantStatus: http.StatusBadGateway},
		{name: "provider error", err: &domain.ProviderError{Code: "access_denied"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{
				oauthService: &mockOAuthService{
					callbackFn: func(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
						return nil, tt.err
					},
				},
			}
			rr := httptest.NewRecorder()
			server.handleOAuthCallback(rr, httptest.NewRequest("GET", "/api/v1/oauth/callback?code=c&state=s", nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}

func TestHandleOAuthCallback_Redirects(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
		wantReason string
	}{
		{name: "connected", wantStatus: "connected"},
		{name: "state mismatch", err: domain.ErrStateMismatch, wantStatus: "error", wantReason: "state_mismatch"},
		{name: "missing session", err: domain.ErrMissingSessionData, wantStatus: "error", wantReason: "missing_session"},
		{name: "exchange failed", err: fmt.Errorf("exchange: %w", domain.ErrTokenExchangeFailed), wantStatus: "error", wantReason: "exchange_failed"},
		{name: "provider denied", err: &domain.ProviderError{Code: "access_denied"}, wantStatus: "error", wantReason: "access_denied"},
		{name: "no config", err: domain.ErrConfigurationMissing, wantStatus: "error", wantReason: "configuration_missing"},
		{name: "unexpected", err: errors.New("db down"), wantStatus: "error", wantReason: "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{
				postAuthRedirectURL: "https://chat.example.com/settings?tab=connections",
				oauthService: &mockOAuthService{
					callbackFn: func(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
						if tt.err != nil {
							return nil, tt.err
						}
						return &driving.CallbackResponse{UserID: "user-1"}, nil
					},
				},
			}
			rr := httptest.NewRecorder()
			server.handleOAuthCallback(rr, httptest.NewRequest("GET", "/api/v1/oauth/callback?code=c&state=s", nil))

			if rr.Code != http.StatusFound {
				t.Fatalf("expected status 302, got %d", rr.Code)
			}
			loc, err := url.Parse(rr.Header().Get("Location"))
			if err != nil {
				t.Fatalf("bad location: %v", err)
			}
			if loc.Host != "chat.example.com" || loc.Path != "/settings" {
				t.Errorf("unexpected redirect target %s", loc)
			}
			q := loc.Query()
			if q.Get("tab") != "connections" {
				t.Error("expected existing query to be preserved")
			}
			if q.Get("status") != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, q.Get("status"))
			}
			if q.Get("reason") != tt.wantReason {
				t.Errorf("expected reason %q, got %q", tt.wantReason, q.Get("reason"))
			}
			if strings.Contains(loc.RawQuery, "code=") {
				t.Error("authorization code must not leak into the redirect")
			}
		})
	}
}

// Connection

func TestHandleGetConnection(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).UTC()
	server := &Server{
		tokenService: &mockTokenService{
			statusFn: func(ctx context.Context, userID string) (*domain.ConnectionStatus, error) {
				return &domain.ConnectionStatus{Connected: true, TenantID: "1234567_SB1", ExpiresAt: &expiresAt}, nil
			},
		},
	}

	rr := httptest.NewRecorder()
	server.handleGetConnection(rr, withAuth(httptest.NewRequest("GET", "/api/v1/connection", nil), "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "access_token") || strings.Contains(body, "refresh_token") {
		t.Errorf("status must not expose tokens: %s", body)
	}
	status := decodeBody[domain.ConnectionStatus](t, rr)
	if !status.Connected || status.TenantID != "1234567_SB1" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestHandleDisconnect(t *testing.T) {
	var disconnected string
	server := &Server{
		tokenService: &mockTokenService{
			disconnectFn: func(ctx context.Context, userID string) error {
				disconnected = userID
				return nil
			},
		},
	}

	rr := httptest.NewRecorder()
	server.handleDisconnect(rr, withAuth(httptest.NewRequest("DELETE", "/api/v1/connection", nil), "user-1"))

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rr.Code)
	}
	if disconnected != "user-1" {
		t.Errorf("expected disconnect for user-1, got %q", disconnected)
	}
}

func TestHandleGetTenantConfig_NotConfigured(t *testing.T) {
	server := &Server{tenantService: &mockTenantService{}}

	rr := httptest.NewRecorder()
	server.handleGetTenantConfig(rr, withAuth(httptest.NewRequest("GET", "/api/v1/connection/config", nil), "user-1"))

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestHandleSaveTenantConfig(t *testing.T) {
	server := &Server{
		tenantService: &mockTenantService{
			saveFn: func(ctx context.Context, userID string, req driving.SaveTenantConfigRequest) (*domain.TenantConfig, error) {
				if req.TenantID == "" {
					return nil, fmt.Errorf("%w: tenant_id is required", domain.ErrInvalidInput)
				}
				return &domain.TenantConfig{UserID: userID, TenantID: req.TenantID, ClientID: req.ClientID}, nil
			},
		},
	}

	t.Run("saved", func(t *testing.T) {
		body, _ := json.Marshal(driving.SaveTenantConfigRequest{TenantID: "1234567_SB1", ClientID: "client-abc"})
		rr := httptest.NewRecorder()
		server.handleSaveTenantConfig(rr, withAuth(httptest.NewRequest("PUT", "/api/v1/connection/config", bytes.NewBuffer(body)), "user-1"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		cfg := decodeBody[domain.TenantConfig](t, rr)
		if cfg.UserID != "user-1" || cfg.TenantID != "1234567_SB1" {
			t.Errorf("unexpected config %+v", cfg)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		server.handleSaveTenantConfig(rr, withAuth(httptest.NewRequest("PUT", "/api/v1/connection/config", strings.NewReader("{")), "user-1"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("validation", func(t *testing.T) {
		rr := httptest.NewRecorder()
		server.handleSaveTenantConfig(rr, withAuth(httptest.NewRequest("PUT", "/api/v1/connection/config", strings.NewReader(`{"client_id":"x"}`)), "user-1"))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

// Tools

func TestHandleListTools(t *testing.T) {
	server := &Server{
		toolService: &mockToolService{
			buildRegistryFn: func(ctx context.Context, userID string) (driving.ToolRegistry, error) {
				return stubRegistry{
					{key: "ns_runReport", name: "ns.runReport", params: []domain.ParamSpec{{Name: "id", Kind: domain.KindString, Required: true}}},
					{key: "ping", name: "ping"},
				}, nil
			},
		},
	}

	rr := httptest.NewRecorder()
	server.handleListTools(rr, withAuth(httptest.NewRequest("GET", "/api/v1/tools", nil), "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	tools := decodeBody[[]ToolResponse](t, rr)
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Key != "ns_runReport" || tools[0].Name != "ns.runReport" {
		t.Errorf("unexpected first tool %+v", tools[0])
	}
	if len(tools[0].Params) != 1 || !tools[0].Params[0].Required {
		t.Errorf("expected required id param, got %+v", tools[0].Params)
	}
	if tools[1].Params == nil {
		t.Error("expected empty params array, not null")
	}
}

func TestHandleListTools_NotConnected(t *testing.T) {
	server := &Server{
		toolService: &mockToolService{
			buildRegistryFn: func(ctx context.Context, userID string) (driving.ToolRegistry, error) {
				return nil, domain.ErrNotConnected
			},
		},
	}

	rr := httptest.NewRecorder()
	server.handleListTools(rr, withAuth(httptest.NewRequest("GET", "/api/v1/tools", nil), "user-1"))

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rr.Code)
	}
}

func TestHandleInvokeTool(t *testing.T) {
	var gotName string
	var gotArgs map[string]any
	server := &Server{
		toolService: &mockToolService{
			invokeFn: func(ctx context.Context, userID, toolName string, args map[string]any) domain.InvokeResult {
				gotName, gotArgs = toolName, args
				if _, ok := args["id"]; !ok {
					return domain.InvokeResult{Error: &domain.InvokeError{Kind: domain.InvokeErrorInvalidArguments, Message: "id is required"}}
				}
				return domain.InvokeResult{Success: true, Result: json.RawMessage(`{"rows":1}`)}
			},
		},
	}

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/tools/ns_runReport/invoke", strings.NewReader(`{"arguments":{"id":"42"}}`))
		req.SetPathValue("name", "ns_runReport")
		rr := httptest.NewRecorder()
		server.handleInvokeTool(rr, withAuth(req, "user-1"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if gotName != "ns_runReport" || gotArgs["id"] != "42" {
			t.Errorf("unexpected invoke %s %v", gotName, gotArgs)
		}
		res := decodeBody[domain.InvokeResult](t, rr)
		if !res.Success || string(res.Result) != `{"rows":1}` {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("failure still 200", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/tools/ns_runReport/invoke", nil)
		req.SetPathValue("name", "ns_runReport")
		rr := httptest.NewRecorder()
		server.handleInvokeTool(rr, withAuth(req, "user-1"))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if gotArgs == nil {
			t.Error("expected empty argument map, not nil")
		}
		res := decodeBody[domain.InvokeResult](t, rr)
		if res.Success || res.Error == nil || res.Error.Kind != domain.InvokeErrorInvalidArguments {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/tools/ns_runReport/invoke", strings.NewReader("{"))
		req.SetPathValue("name", "ns_runReport")
		rr := httptest.NewRecorder()
		server.handleInvokeTool(rr, withAuth(req, "user-1"))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

// Routing

func TestServer_Routes(t *testing.T) {
	auth := &mockAuthService{
		validateTokenFn: func(ctx context.Context, token string) (*domain.AuthContext, error) {
			if token == "good" {
				return &domain.AuthContext{UserID: "user-1"}, nil
			}
			return nil, domain.ErrTokenInvalid
		},
	}
	server := NewServer(DefaultConfig(), Services{
		Auth:   auth,
		OAuth: &mockOAuthService{
			callbackFn: func(ctx context.Context, req driving.CallbackRequest) (*driving.CallbackResponse, error) {
				return nil, &domain.ProviderError{Code: req.Error}
			},
		},
		Token:  &mockTokenService{},
		Tools:  &mockToolService{},
		Tenant: &mockTenantService{},
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	}), nil, nil)
	handler := server.Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{name: "health is public", method: "GET", path: "/health", wantStatus: http.StatusOK},
		{name: "metrics is public", method: "GET", path: "/metrics", wantStatus: http.StatusOK},
		{name: "connection needs auth", method: "GET", path: "/api/v1/connection", wantStatus: http.StatusUnauthorized},
		{name: "connection with auth", method: "GET", path: "/api/v1/connection", token: "good", wantStatus: http.StatusOK},
		{name: "tools needs auth", method: "GET", path: "/api/v1/tools", token: "bad", wantStatus: http.StatusUnauthorized},
		{name: "invoke routed", method: "POST", path: "/api/v1/tools/ping/invoke", token: "good", wantStatus: http.StatusOK},
		{name: "callback is public", method: "GET", path: "/api/v1/oauth/callback?error=access_denied", wantStatus: http.StatusBadRequest},
		{name: "wrong method", method: "GET", path: "/api/v1/oauth/authorize", token: "good", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}
