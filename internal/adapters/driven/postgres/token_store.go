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
var _ driven.TokenStore = (*TokenStore)(nil)

// TokenStore implements driven.TokenStore using PostgreSQL.
// When a cipher is set, access and refresh tokens are sealed at rest.
type TokenStore struct {
	db     *DB
	cipher *TokenCipher
}

// NewTokenStore creates a new TokenStore. cipher may be nil.
func NewTokenStore(db *DB, cipher *TokenCipher) *TokenStore {
	return &TokenStore{db: db, cipher: cipher}
}

// Get retrieves the user's token record
func (s *TokenStore) Get(ctx context.Context, userID string) (*domain.TokenRecord, error) {
	query := `
		SELECT user_id, tenant_id, access_token, refresh_token, token_type, expires_at, created_at, updated_at
		FROM oauth_tokens
		WHERE user_id = $1
	`

	var rec domain.TokenRecord
	var refreshToken, tokenType sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.TenantID,
		&rec.AccessToken,
		&refreshToken,
		&tokenType,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token record: %w", err)
	}
	rec.RefreshToken = refreshToken.String
	rec.TokenType = tokenType.String

	if s.cipher != nil {
		if rec.AccessToken, err = s.cipher.Open(rec.AccessToken, rec.UserID); err != nil {
			return nil, fmt.Errorf("open access token: %w", err)
		}
		if rec.RefreshToken, err = s.cipher.Open(rec.RefreshToken, rec.UserID); err != nil {
			return nil, fmt.Errorf("open refresh token: %w", err)
		}
	}
	return &rec, nil
}

// Save creates or replaces the user's token record in one statement
func (s *TokenStore) Save(ctx context.Context, rec *domain.TokenRecord) error {
	query := `
		INSERT INTO oauth_tokens (user_id, tenant_id, access_token, refresh_token, token_type, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	accessToken, refreshToken := rec.AccessToken, rec.RefreshToken
	if s.cipher != nil {
		var err error
		if accessToken, err = s.cipher.Seal(accessToken, rec.UserID); err != nil {
			return fmt.Errorf("seal access token: %w", err)
		}
		if refreshToken, err = s.cipher.Seal(refreshToken, rec.UserID); err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.UserID,
		rec.TenantID,
		accessToken,
		nullString(refreshToken),
		nullString(rec.TokenType),
		rec.ExpiresAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save token record: %w", err)
	}
	return nil
}

// Delete removes the user's token record
func (s *TokenStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	return nil
}
