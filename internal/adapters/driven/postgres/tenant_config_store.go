package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TenantConfigStore = (*TenantConfigStore)(nil)

// TenantConfigStore implements driven.TenantConfigStore using PostgreSQL
type TenantConfigStore struct {
	db *DB
}

// NewTenantConfigStore creates a new TenantConfigStore
func NewTenantConfigStore(db *DB) *TenantConfigStore {
	return &TenantConfigStore{db: db}
}

// Get retrieves the user's tenant configuration
func (s *TenantConfigStore) Get(ctx context.Context, userID string) (*domain.TenantConfig, error) {
	query := `
		SELECT user_id, tenant_id, client_id, scope, created_at, updated_at
		FROM tenant_configs
		WHERE user_id = $1
	`

	var cfg domain.TenantConfig
	var scope sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&cfg.UserID,
		&cfg.TenantID,
		&cfg.ClientID,
		&scope,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant config: %w", err)
	}
	cfg.Scope = scope.String
	return &cfg, nil
}

// Save creates or replaces the user's tenant configuration
func (s *TenantConfigStore) Save(ctx context.Context, cfg *domain.TenantConfig) error {
	query := `
		INSERT INTO tenant_configs (user_id, tenant_id, client_id, scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			client_id = EXCLUDED.client_id,
			scope = EXCLUDED.scope,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cfg.UserID,
		cfg.TenantID,
		cfg.ClientID,
		nullString(cfg.Scope),
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save tenant config: %w", err)
	}
	return nil
}

// Delete removes the user's tenant configuration
func (s *TenantConfigStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tenant_configs WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete tenant config: %w", err)
	}
	return nil
}
