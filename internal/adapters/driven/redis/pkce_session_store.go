package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PKCESessionStore = (*PKCESessionStore)(nil)

const pkceSessionPrefix = "toolbridge:pkce:"

// PKCESessionStore implements driven.PKCESessionStore using Redis.
// Sessions expire through Redis TTL and are consumed with GETDEL.
type PKCESessionStore struct {
	client redis.UniversalClient
}

// NewPKCESessionStore creates a new Redis-backed PKCE session store
func NewPKCESessionStore(client redis.UniversalClient) *PKCESessionStore {
	return &PKCESessionStore{client: client}
}

// Save stores a session with a TTL derived from ExpiresAt
func (s *PKCESessionStore) Save(ctx context.Context, session *domain.PKCESession) error {
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = time.Now().Add(domain.PKCESessionTTL)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		// Already expired, nothing to redeem
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal pkce session: %w", err)
	}
	if err := s.client.Set(ctx, pkceSessionPrefix+session.State, data, ttl).Err(); err != nil {
		return fmt.Errorf("save pkce session: %w", err)
	}
	return nil
}

// GetAndDelete atomically retrieves and deletes the session
func (s *PKCESessionStore) GetAndDelete(ctx context.Context, state string) (*domain.PKCESession, error) {
	data, err := s.client.GetDel(ctx, pkceSessionPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pkce session: %w", err)
	}

	var session domain.PKCESession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal pkce session: %w", err)
	}
	if session.IsExpired(time.Now()) {
		return nil, nil
	}
	return &session, nil
}

// Cleanup is a no-op: Redis expires sessions itself
func (s *PKCESessionStore) Cleanup(ctx context.Context) (int64, error) {
	return 0, nil
}
