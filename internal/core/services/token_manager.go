package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
	"github.com/custodia-labs/toolbridge/internal/metrics"
)

// Ensure TokenManager implements TokenService
var _ driving.TokenService = (*TokenManager)(nil)

const (
	// DefaultRefreshTimeout bounds a refresh, including the token endpoint call.
	DefaultRefreshTimeout = 15 * time.Second

	// DefaultRefreshLockTTL is the lifetime of the cross-instance refresh lock.
	DefaultRefreshLockTTL = 30 * time.Second

	refreshLockPrefix = "token-refresh:"
	peerPollInterval  = 200 * time.Millisecond
)

// RefreshFailurePolicy decides what happens to a token record when refresh fails.
type RefreshFailurePolicy int

const (
	// FailClosed deletes the record on any refresh failure.
	FailClosed RefreshFailurePolicy = iota
	// FailClosedOnRejection deletes the record only when the provider
	// rejected the refresh token. Transport errors keep the record.
	FailClosedOnRejection
)

// String returns the configuration name of the policy.
func (p RefreshFailurePolicy) String() string {
	switch p {
	case FailClosedOnRejection:
		return "on-rejection"
	default:
		return "always"
	}
}

// ParseRefreshFailurePolicy parses "always" or "on-rejection".
// An empty string selects FailClosed.
func ParseRefreshFailurePolicy(s string) (RefreshFailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always", "fail-closed":
		return FailClosed, nil
	case "on-rejection":
		return FailClosedOnRejection, nil
	default:
		return FailClosed, fmt.Errorf("%w: unknown refresh failure policy %q", domain.ErrInvalidInput, s)
	}
}

// TokenManagerConfig holds configuration for the token manager.
type TokenManagerConfig struct {
	TokenStore        driven.TokenStore
	TenantConfigStore driven.TenantConfigStore
	TokenEndpoint     driven.TokenEndpoint
	Endpoints         domain.EndpointTemplates

	// Lock serializes refreshes across instances. Optional.
	Lock driven.DistributedLock

	// RefreshBuffer defaults to domain.RefreshBuffer.
	RefreshBuffer time.Duration
	// RefreshTimeout defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration
	// LockTTL defaults to DefaultRefreshLockTTL.
	LockTTL time.Duration

	Policy  RefreshFailurePolicy
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
}

// TokenManager hands out valid access tokens and refreshes them proactively.
//
// Reads of a token outside the refresh buffer take no lock. Refreshes for
// one user are coalesced in-process with a singleflight group and, when a
// DistributedLock is configured, serialized across instances.
type TokenManager struct {
	tokenStore        driven.TokenStore
	tenantConfigStore driven.TenantConfigStore
	tokenEndpoint     driven.TokenEndpoint
	endpoints         domain.EndpointTemplates
	lock              driven.DistributedLock
	refreshBuffer     time.Duration
	refreshTimeout    time.Duration
	lockTTL           time.Duration
	policy            RefreshFailurePolicy
	logger            *slog.Logger
	metrics           *metrics.Recorder
	now               func() time.Time

	group singleflight.Group
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	m := &TokenManager{
		tokenStore:        cfg.TokenStore,
		tenantConfigStore: cfg.TenantConfigStore,
		tokenEndpoint:     cfg.TokenEndpoint,
		endpoints:         cfg.Endpoints,
		lock:              cfg.Lock,
		refreshBuffer:     cfg.RefreshBuffer,
		refreshTimeout:    cfg.RefreshTimeout,
		lockTTL:           cfg.LockTTL,
		policy:            cfg.Policy,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		now:               cfg.Now,
	}
	if m.refreshBuffer <= 0 {
		m.refreshBuffer = domain.RefreshBuffer
	}
	if m.refreshTimeout <= 0 {
		m.refreshTimeout = DefaultRefreshTimeout
	}
	if m.lockTTL <= 0 {
		m.lockTTL = DefaultRefreshLockTTL
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "token_manager")
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// GetValidAccessToken returns an access token valid for at least the refresh buffer.
func (m *TokenManager) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	record, err := m.tokenStore.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get token record: %w", err)
	}
	if record == nil {
		return "", domain.ErrNotConnected
	}
	if !record.NeedsRefresh(m.now(), m.refreshBuffer) {
		return record.AccessToken, nil
	}

	// The refresh runs detached so a cancelled caller never leaves a partial write
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(userID, func() (any, error) {
		return m.refresh(detached, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.metrics.Refresh("deduplicated")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh runs at most once per user at a time.
func (m *TokenManager) refresh(parent context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, m.refreshTimeout)
	defer cancel()

	if m.lock != nil {
		release, token, err := m.acquireRefreshLock(ctx, userID)
		if err != nil || token != "" {
			return token, err
		}
		defer release()
	}

	// Another flight or instance may have refreshed while we waited
	record, err := m.tokenStore.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get token record: %w", err)
	}
	if record == nil {
		return "", domain.ErrNotConnected
	}
	if !record.NeedsRefresh(m.now(), m.refreshBuffer) {
		return record.AccessToken, nil
	}

	cfg, err := m.tenantConfigStore.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get tenant config: %w", err)
	}
	if !cfg.IsConfigured() {
		return "", domain.ErrConfigurationMissing
	}

	tenantID := record.TenantID
	if tenantID == "" {
		tenantID = cfg.TenantID
	}

	var grant *domain.TokenGrant
	if record.RefreshToken == "" {
		err = fmt.Errorf("%w: no refresh token stored", domain.ErrTokenRefreshFailed)
	} else {
		grant, err = m.tokenEndpoint.Refresh(ctx, driven.RefreshRequest{
			TokenURL:     m.endpoints.Resolve(tenantID).Token,
			ClientID:     cfg.ClientID,
			RefreshToken: record.RefreshToken,
		})
	}
	if err != nil {
		return "", m.handleRefreshFailure(ctx, userID, err)
	}

	updated := grant.ApplyTo(record, userID, tenantID, m.now())
	if err := m.tokenStore.Save(ctx, updated); err != nil {
		m.metrics.Refresh("failed")
		return "", fmt.Errorf("save refreshed token: %w", err)
	}

	m.metrics.Refresh("success")
	m.logger.Info("token refreshed", "user_id", userID, "expires_at", updated.ExpiresAt)
	return updated.AccessToken, nil
}

// handleRefreshFailure applies the failure policy and returns ErrNotConnected
// wrapping the cause when the record was deleted.
func (m *TokenManager) handleRefreshFailure(ctx context.Context, userID string, cause error) error {
	rejected := errors.Is(cause, domain.ErrTokenRefreshFailed)
	if rejected {
		m.metrics.Refresh("rejected")
	} else {
		m.metrics.Refresh("failed")
	}

	if m.policy == FailClosedOnRejection && !rejected {
		m.logger.Warn("token refresh failed, keeping record", "user_id", userID, "error", cause)
		return fmt.Errorf("refresh token: %w", cause)
	}

	// The delete must happen even if the refresh deadline already fired
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()
	if err := m.tokenStore.Delete(delCtx, userID); err != nil {
		m.logger.Error("failed to delete token record after refresh failure", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %w", domain.ErrNotConnected, errors.Join(cause, err))
	}

	m.logger.Warn("token refresh failed, record deleted", "user_id", userID, "error", cause)
	return fmt.Errorf("%w: %w", domain.ErrNotConnected, cause)
}

// acquireRefreshLock takes the cross-instance lock for userID. If another
// instance holds it, it waits for that instance to finish and returns the
// token it stored. On success with the lock held, token is empty.
func (m *TokenManager) acquireRefreshLock(ctx context.Context, userID string) (release func(), token string, err error) {
	name := refreshLockPrefix + userID
	ticker := time.NewTicker(peerPollInterval)
	defer ticker.Stop()

	for {
		acquired, err := m.lock.Acquire(ctx, name, m.lockTTL)
		if err != nil {
			return nil, "", fmt.Errorf("acquire refresh lock: %w", err)
		}
		if acquired {
			return func() {
				relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := m.lock.Release(relCtx, name); err != nil {
					m.logger.Warn("failed to release refresh lock", "user_id", userID, "error", err)
				}
			}, "", nil
		}

		select {
		case <-ctx.Done():
			return nil, "", fmt.Errorf("wait for refresh lock: %w", ctx.Err())
		case <-ticker.C:
		}

		record, err := m.tokenStore.Get(ctx, userID)
		if err != nil {
			return nil, "", fmt.Errorf("get token record: %w", err)
		}
		if record == nil {
			// The other instance failed closed
			return nil, "", domain.ErrNotConnected
		}
		if !record.NeedsRefresh(m.now(), m.refreshBuffer) {
			m.metrics.Refresh("deduplicated")
			return nil, record.AccessToken, nil
		}
	}
}

// Status reports the user's connection without exposing secrets.
func (m *TokenManager) Status(ctx context.Context, userID string) (*domain.ConnectionStatus, error) {
	record, err := m.tokenStore.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get token record: %w", err)
	}
	if record == nil {
		return &domain.ConnectionStatus{Connected: false}, nil
	}
	expiresAt := record.ExpiresAt
	updatedAt := record.UpdatedAt
	return &domain.ConnectionStatus{
		Connected: true,
		TenantID:  record.TenantID,
		ExpiresAt: &expiresAt,
		UpdatedAt: &updatedAt,
	}, nil
}

// Disconnect deletes the user's token record.
func (m *TokenManager) Disconnect(ctx context.Context, userID string) error {
	if err := m.tokenStore.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	m.logger.Info("user disconnected", "user_id", userID)
	return nil
}
