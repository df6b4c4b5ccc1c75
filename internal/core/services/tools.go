package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
	"github.com/custodia-labs/toolbridge/internal/metrics"
)

// Ensure toolService implements ToolService
var _ driving.ToolService = (*toolService)(nil)

// ToolServiceConfig holds configuration for the tool service.
type ToolServiceConfig struct {
	// TokenService resolves a fresh access token before every request.
	TokenService driving.TokenService

	// TenantConfigStore resolves the user's tenant for the tool endpoint.
	TenantConfigStore driven.TenantConfigStore

	// ToolClient speaks JSON-RPC to the tool endpoint.
	ToolClient driven.ToolClient

	// Endpoints are the provider URL templates.
	Endpoints domain.EndpointTemplates

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// toolService implements the ToolService interface.
type toolService struct {
	tokens            driving.TokenService
	tenantConfigStore driven.TenantConfigStore
	client            driven.ToolClient
	endpoints         domain.EndpointTemplates
	logger            *slog.Logger
	metrics           *metrics.Recorder
}

// NewToolService creates a new tool service.
func NewToolService(cfg ToolServiceConfig) driving.ToolService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &toolService{
		tokens:            cfg.TokenService,
		tenantConfigStore: cfg.TenantConfigStore,
		client:            cfg.ToolClient,
		endpoints:         cfg.Endpoints,
		logger:            logger.With("component", "tools"),
		metrics:           cfg.Metrics,
	}
}

// DiscoverTools lists the tools the provider currently advertises.
func (s *toolService) DiscoverTools(ctx context.Context, userID string) ([]domain.ToolDescriptor, error) {
	_, tools, err := s.discover(ctx, userID)
	return tools, err
}

// BuildRegistry discovers tools and compiles them into a fresh registry.
func (s *toolService) BuildRegistry(ctx context.Context, userID string) (driving.ToolRegistry, error) {
	target, tools, err := s.discover(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewRegistry(userID, target.Endpoint, tools, s), nil
}

func (s *toolService) discover(ctx context.Context, userID string) (driven.ToolTarget, []domain.ToolDescriptor, error) {
	target, err := s.target(ctx, userID)
	if err != nil {
		s.metrics.Discovery("error")
		return target, nil, err
	}

	tools, err := s.client.ListTools(ctx, target)
	if err != nil {
		s.metrics.Discovery("error")
		return target, nil, fmt.Errorf("list tools: %w", err)
	}
	if tools == nil {
		tools = []domain.ToolDescriptor{}
	}

	s.metrics.Discovery("success")
	s.logger.Debug("tools discovered", "user_id", userID, "count", len(tools))
	return target, tools, nil
}

// Invoke builds a registry for this call and runs one tool.
func (s *toolService) Invoke(ctx context.Context, userID, toolName string, args map[string]any) domain.InvokeResult {
	registry, err := s.BuildRegistry(ctx, userID)
	if err != nil {
		res := failure(err)
		s.metrics.ToolInvocation(string(res.Error.Kind), 0)
		return res
	}

	tool, ok := registry.Lookup(toolName)
	if !ok {
		s.metrics.ToolInvocation(string(domain.InvokeErrorUnknownTool), 0)
		return failure(fmt.Errorf("%w: %s", domain.ErrUnknownTool, toolName))
	}
	return tool.Invoke(ctx, args)
}

// call resolves a fresh token and performs tools/call. Arguments are already validated.
func (s *toolService) call(ctx context.Context, userID, endpoint, name string, args map[string]any) domain.InvokeResult {
	token, err := s.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		res := failure(err)
		s.metrics.ToolInvocation(string(res.Error.Kind), 0)
		return res
	}

	start := time.Now()
	result, err := s.client.CallTool(ctx, driven.ToolTarget{
		UserID:      userID,
		Endpoint:    endpoint,
		AccessToken: token,
	}, name, args)
	elapsed := time.Since(start)

	if err != nil {
		res := failure(err)
		s.metrics.ToolInvocation(string(res.Error.Kind), elapsed)
		s.logger.Warn("tool call failed", "user_id", userID, "tool", name, "kind", res.Error.Kind, "duration", elapsed)
		return res
	}

	s.metrics.ToolInvocation("success", elapsed)
	s.logger.Info("tool call succeeded", "user_id", userID, "tool", name, "duration", elapsed)
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return domain.InvokeResult{Success: true, Result: result}
}

// target resolves the endpoint and a valid token for user.
func (s *toolService) target(ctx context.Context, userID string) (driven.ToolTarget, error) {
	cfg, err := s.tenantConfig(ctx, userID)
	if err != nil {
		return driven.ToolTarget{}, err
	}
	token, err := s.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return driven.ToolTarget{}, err
	}
	return driven.ToolTarget{
		UserID:      userID,
		Endpoint:    s.endpoints.Resolve(cfg.TenantID).MCP,
		AccessToken: token,
	}, nil
}

func (s *toolService) tenantConfig(ctx context.Context, userID string) (*domain.TenantConfig, error) {
	cfg, err := s.tenantConfigStore.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get tenant config: %w", err)
	}
	if !cfg.IsConfigured() {
		return nil, domain.ErrConfigurationMissing
	}
	return cfg, nil
}

// failure normalizes any error into a failed InvokeResult.
func failure(err error) domain.InvokeResult {
	ie := &domain.InvokeError{Message: err.Error()}

	var rpcErr *domain.ToolRPCError
	var httpErr *domain.ToolHTTPError

	switch {
	case errors.Is(err, domain.ErrInvalidArguments):
		ie.Kind = domain.InvokeErrorInvalidArguments
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrAuthenticationRequired):
		ie.Kind = domain.InvokeErrorAuthenticationRequired
		ie.Message = domain.ErrAuthenticationRequired.Error() + ": connect your account to continue"
	case errors.Is(err, domain.ErrConfigurationMissing):
		ie.Kind = domain.InvokeErrorConfiguration
	case errors.Is(err, domain.ErrUnknownTool):
		ie.Kind = domain.InvokeErrorUnknownTool
	case errors.Is(err, domain.ErrToolTimeout):
		ie.Kind = domain.InvokeErrorTimeout
	case errors.As(err, &rpcErr):
		ie.Kind = domain.InvokeErrorRPC
		ie.Code = rpcErr.Code
		ie.Message = rpcErr.Message
	case errors.As(err, &httpErr):
		ie.Kind = domain.InvokeErrorHTTP
		ie.Code = httpErr.Status
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ie.Kind = domain.InvokeErrorCancelled
	default:
		ie.Kind = domain.InvokeErrorTransport
	}

	return domain.InvokeResult{Success: false, Error: ie}
}
