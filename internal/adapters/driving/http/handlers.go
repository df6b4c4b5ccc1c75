package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
)

// stateCookieName binds an authorization attempt to the browser that started it.
const stateCookieName = "toolbridge_oauth_state"

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ToolResponse is a discovered tool as exposed to the orchestration layer.
// @Description Provider tool with its identifier-safe key
type ToolResponse struct {
	Key         string             `json:"key" example:"ns_runReport"`
	Name        string             `json:"name" example:"ns.runReport"`
	Description string             `json:"description,omitempty"`
	Params      []domain.ParamSpec `json:"params"`
}

// InvokeToolRequest carries the arguments of one tool invocation.
// @Description Tool invocation arguments
type InvokeToolRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings PostgreSQL and, when configured, Redis
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "Dependency unavailable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// OAuth endpoints

// handleAuthorize godoc
// @Summary      Start authorization
// @Description  Generates PKCE credentials and returns the provider authorization URL for the caller's tenant
// @Tags         OAuth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.AuthorizeResponse
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      409  {object}  ErrorResponse  "Connection not configured"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /api/v1/oauth/authorize [post]
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp, err := s.oauthService.Authorize(r.Context(), driving.AuthorizeRequest{UserID: authCtx.UserID})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    resp.State,
		Path:     "/api/v1/oauth",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleOAuthCallback godoc
// @Summary      Authorization callback
// @Description  Provider redirect target. Validates state, exchanges the code and stores the connection. Redirects to the post-authorization page when one is configured.
// @Tags         OAuth
// @Produce      json
// @Param        code               query     string  false  "Authorization code"
// @Param        state              query     string  false  "State parameter"
// @Param        error              query     string  false  "Provider error code"
// @Param        error_description  query     string  false  "Provider error description"
// @Success      200  {object}  driving.CallbackResponse
// @Success      302  "Redirect to the post-authorization page"
// @Failure      400  {object}  ErrorResponse  "State mismatch, missing session or provider error"
// @Failure      502  {object}  ErrorResponse  "Token exchange failed"
// @Router       /api/v1/oauth/callback [get]
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := driving.CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	if c, err := r.Cookie(stateCookieName); err == nil {
		req.ExpectedState = c.Value
	}

	resp, err := s.oauthService.Callback(r.Context(), req)

	// The attempt is over either way
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/v1/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	if s.postAuthRedirectURL == "" {
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	params := url.Values{}
	if err != nil {
		params.Set("status", "error")
		params.Set("reason", callbackReason(err))
	} else {
		params.Set("status", "connected")
	}
	http.Redirect(w, r, appendQuery(s.postAuthRedirectURL, params), http.StatusFound)
}

// callbackReason maps a callback failure to a stable, secret-free reason code.
func callbackReason(err error) string {
	var providerErr *domain.ProviderError
	switch {
	case errors.As(err, &providerErr):
		return providerErr.Code
	case errors.Is(err, domain.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, domain.ErrMissingSessionData):
		return "missing_session"
	case errors.Is(err, domain.ErrConfigurationMissing):
		return "configuration_missing"
	case errors.Is(err, domain.ErrTokenExchangeFailed):
		return "exchange_failed"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_request"
	default:
		return "server_error"
	}
}

func appendQuery(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connection endpoints

// handleGetConnection godoc
// @Summary      Connection status
// @Description  Reports whether the caller has a stored provider connection. Never returns token values.
// @Tags         Connection
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.ConnectionStatus
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /api/v1/connection [get]
func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	status, err := s.tokenService.Status(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDisconnect godoc
// @Summary      Disconnect
// @Description  Deletes the caller's stored provider tokens
// @Tags         Connection
// @Security     BearerAuth
// @Success      204  "No Content"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /api/v1/connection [delete]
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := s.tokenService.Disconnect(r.Context(), authCtx.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTenantConfig godoc
// @Summary      Get connection configuration
// @Description  Returns the caller's tenant and client configuration
// @Tags         Connection
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.TenantConfig
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      404  {object}  ErrorResponse  "Not configured"
// @Router       /api/v1/connection/config [get]
func (s *Server) handleGetTenantConfig(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cfg, err := s.tenantService.Get(r.Context(), authCtx.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrConfigurationMissing) {
			writeError(w, http.StatusNotFound, "connection not configured")
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleSaveTenantConfig godoc
// @Summary      Save connection configuration
// @Description  Sets the caller's tenant and public client id. Changing either drops the stored connection.
// @Tags         Connection
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.SaveTenantConfigRequest  true  "Tenant configuration"
// @Success      200      {object}  domain.TenantConfig
// @Failure      400      {object}  ErrorResponse  "Invalid request"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Router       /api/v1/connection/config [put]
func (s *Server) handleSaveTenantConfig(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req driving.SaveTenantConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := s.tenantService.Save(r.Context(), authCtx.UserID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleDeleteTenantConfig godoc
// @Summary      Delete connection configuration
// @Description  Removes the caller's tenant configuration and stored connection
// @Tags         Connection
// @Security     BearerAuth
// @Success      204  "No Content"
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Router       /api/v1/connection/config [delete]
func (s *Server) handleDeleteTenantConfig(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := s.tenantService.Delete(r.Context(), authCtx.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tool endpoints

// handleListTools godoc
// @Summary      List tools
// @Description  Discovers the tools the provider currently advertises for the caller. Never cached.
// @Tags         Tools
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   ToolResponse
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      409  {object}  ErrorResponse  "Not connected or not configured"
// @Failure      502  {object}  ErrorResponse  "Provider error"
// @Failure      504  {object}  ErrorResponse  "Provider timeout"
// @Router       /api/v1/tools [get]
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	registry, err := s.toolService.BuildRegistry(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	tools := registry.Tools()
	resp := make([]ToolResponse, 0, len(tools))
	for _, t := range tools {
		params := t.Params()
		if params == nil {
			params = []domain.ParamSpec{}
		}
		resp = append(resp, ToolResponse{
			Key:         t.Key(),
			Name:        t.Name(),
			Description: t.Description(),
			Params:      params,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInvokeTool godoc
// @Summary      Invoke a tool
// @Description  Validates the arguments and calls the tool. Every invocation outcome is reported in the result body with status 200.
// @Tags         Tools
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        name     path      string             true  "Tool key or original name"
// @Param        request  body      InvokeToolRequest  true  "Arguments"
// @Success      200      {object}  domain.InvokeResult
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Router       /api/v1/tools/{name}/invoke [post]
func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "tool name is required")
		return
	}

	var req InvokeToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && r.ContentLength != 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	result := s.toolService.Invoke(r.Context(), authCtx.UserID, name, req.Arguments)
	writeJSON(w, http.StatusOK, result)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a service error onto a status code and message.
func writeServiceError(w http.ResponseWriter, err error) {
	var providerErr *domain.ProviderError
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &providerErr):
		writeError(w, http.StatusBadRequest, "provider error: "+providerErr.Code)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStateMismatch):
		writeError(w, http.StatusBadRequest, "state mismatch")
	case errors.Is(err, domain.ErrMissingSessionData):
		writeError(w, http.StatusBadRequest, "authorization session missing or expired")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConfigurationMissing):
		writeError(w, http.StatusConflict, "connection not configured")
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusConflict, "not connected")
	case errors.Is(err, domain.ErrTokenExchangeFailed):
		writeError(w, http.StatusBadGateway, "token exchange failed")
	case errors.Is(err, domain.ErrToolHTTP), errors.Is(err, domain.ErrToolRPC):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrToolTimeout):
		writeError(w, http.StatusGatewayTimeout, "provider timed out")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
