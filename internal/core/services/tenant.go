package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
)

// Ensure tenantConfigService implements TenantConfigService
var _ driving.TenantConfigService = (*tenantConfigService)(nil)

// tenantHostPattern is what a normalized tenant id must look like to be used in a host name.
var tenantHostPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// tenantConfigService implements the TenantConfigService interface.
type tenantConfigService struct {
	configStore driven.TenantConfigStore
	tokenStore  driven.TokenStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewTenantConfigService creates a new tenant config service.
// Changing a user's tenant or client drops their token record, since it was
// issued for the previous configuration.
func NewTenantConfigService(configStore driven.TenantConfigStore, tokenStore driven.TokenStore, logger *slog.Logger) driving.TenantConfigService {
	if logger == nil {
		logger = slog.Default()
	}
	return &tenantConfigService{
		configStore: configStore,
		tokenStore:  tokenStore,
		logger:      logger.With("component", "tenant_config"),
		now:         time.Now,
	}
}

// Get returns the user's tenant configuration.
func (s *tenantConfigService) Get(ctx context.Context, userID string) (*domain.TenantConfig, error) {
	cfg, err := s.configStore.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get tenant config: %w", err)
	}
	if cfg == nil {
		return nil, domain.ErrConfigurationMissing
	}
	return cfg, nil
}

// Save creates or replaces the user's tenant configuration.
func (s *tenantConfigService) Save(ctx context.Context, userID string, req driving.SaveTenantConfigRequest) (*domain.TenantConfig, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	clientID := strings.TrimSpace(req.ClientID)
	if userID == "" || tenantID == "" || clientID == "" {
		return nil, fmt.Errorf("%w: tenant_id and client_id are required", domain.ErrInvalidInput)
	}
	if !tenantHostPattern.MatchString(domain.NormalizeTenantID(tenantID)) {
		return nil, fmt.Errorf("%w: tenant_id %q is not a valid host label", domain.ErrInvalidInput, tenantID)
	}

	existing, err := s.configStore.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get tenant config: %w", err)
	}

	now := s.now()
	cfg := &domain.TenantConfig{
		UserID:    userID,
		TenantID:  tenantID,
		ClientID:  clientID,
		Scope:     strings.TrimSpace(req.Scope),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		cfg.CreatedAt = existing.CreatedAt
	}

	if err := s.configStore.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save tenant config: %w", err)
	}

	if existing != nil && (domain.NormalizeTenantID(existing.TenantID) != domain.NormalizeTenantID(tenantID) || existing.ClientID != clientID) {
		if err := s.tokenStore.Delete(ctx, userID); err != nil {
			return nil, fmt.Errorf("delete stale token record: %w", err)
		}
		s.logger.Info("tenant changed, token record dropped", "user_id", userID, "tenant_id", tenantID)
	}

	return cfg, nil
}

// Delete removes the configuration and the token record that depends on it.
func (s *tenantConfigService) Delete(ctx context.Context, userID string) error {
	if err := s.tokenStore.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	if err := s.configStore.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete tenant config: %w", err)
	}
	return nil
}
