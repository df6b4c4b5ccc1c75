package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// Ensure PKCESessionStore implements the interface.
var _ driven.PKCESessionStore = (*PKCESessionStore)(nil)

// PKCESessionStore implements driven.PKCESessionStore using PostgreSQL.
type PKCESessionStore struct {
	db *DB
}

// NewPKCESessionStore creates a new PostgreSQL-backed PKCE session store.
func NewPKCESessionStore(db *DB) *PKCESessionStore {
	return &PKCESessionStore{db: db}
}

// Save stores a new PKCE session.
func (s *PKCESessionStore) Save(ctx context.Context, session *domain.PKCESession) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = now.Add(domain.PKCESessionTTL)
	}

	query := `
		INSERT INTO pkce_sessions (state, user_id, code_verifier, code_challenge, redirect_uri, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.State,
		session.UserID,
		session.CodeVerifier,
		session.CodeChallenge,
		session.RedirectURI,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save pkce session: %w", err)
	}
	return nil
}

// GetAndDelete atomically retrieves and deletes the session.
// Uses DELETE ... RETURNING for atomic single-use semantics.
func (s *PKCESessionStore) GetAndDelete(ctx context.Context, state string) (*domain.PKCESession, error) {
	query := `
		DELETE FROM pkce_sessions
		WHERE state = $1 AND expires_at > NOW()
		RETURNING state, user_id, code_verifier, code_challenge, redirect_uri, created_at, expires_at
	`

	var session domain.PKCESession
	err := s.db.QueryRowContext(ctx, query, state).Scan(
		&session.State,
		&session.UserID,
		&session.CodeVerifier,
		&session.CodeChallenge,
		&session.RedirectURI,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found or expired
	}
	if err != nil {
		return nil, fmt.Errorf("get and delete pkce session: %w", err)
	}
	return &session, nil
}

// Cleanup removes expired sessions.
func (s *PKCESessionStore) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pkce_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup pkce sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup pkce sessions: %w", err)
	}
	return n, nil
}
