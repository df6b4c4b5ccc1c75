package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/toolbridge/internal/core/domain"
)

func TestTokenManager_NotConnected(t *testing.T) {
	f := newFixture(t)

	token, err := f.tokenManager().GetValidAccessToken(context.Background(), testUserID)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Empty(t, token)
}

func TestTokenManager_FreshTokenIsNotRefreshed(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-fresh", 10*time.Minute)

	token, err := f.tokenManager().GetValidAccessToken(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "AT-fresh", token)
	assert.Equal(t, 0, f.endpoint.RefreshCalls())
	assert.Equal(t, 0, f.tokens.SaveCalls)
}

func TestTokenManager_ExpiringTokenIsRefreshedOnce(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", 4*time.Minute)
	f.endpoint.RefreshGrant = &domain.TokenGrant{AccessToken: "AT-new", RefreshToken: "RT1", ExpiresIn: 3600}

	m := f.tokenManager()
	token, err := m.GetValidAccessToken(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "AT-new", token)
	assert.Equal(t, 1, f.endpoint.RefreshCalls())

	req := f.endpoint.LastRefresh
	assert.Equal(t, "RT0", req.RefreshToken)
	assert.Equal(t, testClientID, req.ClientID)
	assert.Equal(t, "https://1234567-sb1.api.example.com/oauth2/token", req.TokenURL)

	rec, err := f.tokens.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "AT-new", rec.AccessToken)
	assert.Equal(t, "RT1", rec.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), rec.ExpiresAt, 5*time.Second)

	// The refreshed token is now outside the buffer
	token, err = m.GetValidAccessToken(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "AT-new", token)
	assert.Equal(t, 1, f.endpoint.RefreshCalls())
}

func TestTokenManager_RefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", time.Minute)
	f.endpoint.RefreshGrant = &domain.TokenGrant{AccessToken: "AT-new", ExpiresIn: 1800}

	_, err := f.tokenManager().GetValidAccessToken(context.Background(), testUserID)
	require.NoError(t, err)

	rec, err := f.tokens.Get(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "RT0", rec.RefreshToken)
	assert.Equal(t, "Bearer", rec.TokenType)
}

func TestTokenManager_ConcurrentCallersShareOneRefresh(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", 4*time.Minute)
	f.endpoint.RefreshGrant = &domain.TokenGrant{AccessToken: "AT-new", RefreshToken: "RT1", ExpiresIn: 3600}
	f.endpoint.RefreshDelay = 50 * time.Millisecond

	m := f.tokenManager(func(c *TokenManagerConfig) { c.Lock = f.lock })

	const callers = 50
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.GetValidAccessToken(context.Background(), testUserID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "AT-new", tokens[i])
	}
	assert.Equal(t, 1, f.endpoint.RefreshCalls())
	assert.False(t, f.lock.IsHeld(refreshLockPrefix+testUserID))
}

func TestTokenManager_RefreshRejectedDeletesRecord(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", 4*time.Minute)
	f.endpoint.RefreshErr = &domain.TokenEndpointError{Refresh: true, Status: 401, Body: "revoked"}

	m := f.tokenManager()
	token, err := m.GetValidAccessToken(context.Background(), testUserID)
	assert.Empty(t, token)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
	assert.Equal(t, 0, f.tokens.Len())

	// Never a stale token afterwards, and no further refresh attempts
	token, err = m.GetValidAccessToken(context.Background(), testUserID)
	assert.Empty(t, token)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Equal(t, 1, f.endpoint.RefreshCalls())
}

func TestTokenManager_RefreshFailurePolicy(t *testing.T) {
	transportErr := errors.New("dial tcp: connection refused")
	rejection := &domain.TokenEndpointError{Refresh: true, Status: 400, Body: "invalid_grant"}

	tests := []struct {
		name       string
		policy     RefreshFailurePolicy
		refreshErr error
		wantKept   bool
	}{
		{"fail closed on rejection", FailClosed, rejection, false},
		{"fail closed on transport error", FailClosed, transportErr, false},
		{"on-rejection policy with rejection", FailClosedOnRejection, rejection, false},
		{"on-rejection policy with transport error", FailClosedOnRejection, transportErr, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedToken("AT-old", time.Minute)
			f.endpoint.RefreshErr = tt.refreshErr

			m := f.tokenManager(func(c *TokenManagerConfig) { c.Policy = tt.policy })
			_, err := m.GetValidAccessToken(context.Background(), testUserID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.refreshErr)

			if tt.wantKept {
				assert.Equal(t, 1, f.tokens.Len())
				assert.NotErrorIs(t, err, domain.ErrNotConnected)
			} else {
				assert.Equal(t, 0, f.tokens.Len())
				assert.ErrorIs(t, err, domain.ErrNotConnected)
			}
		})
	}
}

func TestTokenManager_MissingRefreshTokenFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.tokens.Put(&domain.TokenRecord{
		UserID:      testUserID,
		TenantID:    testTenantID,
		AccessToken: "AT-old",
		ExpiresAt:   time.Now().Add(time.Minute),
	})

	_, err := f.tokenManager().GetValidAccessToken(context.Background(), testUserID)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Equal(t, 0, f.endpoint.RefreshCalls())
	assert.Equal(t, 0, f.tokens.Len())
}

func TestTokenManager_CallerCancellationDoesNotAbortRefresh(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", time.Minute)
	f.endpoint.RefreshGrant = &domain.TokenGrant{AccessToken: "AT-new", ExpiresIn: 3600}
	f.endpoint.RefreshDelay = 200 * time.Millisecond

	m := f.tokenManager()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.GetValidAccessToken(ctx, testUserID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	// The detached refresh still commits, and the record was never deleted
	require.Eventually(t, func() bool {
		rec, _ := f.tokens.Get(context.Background(), testUserID)
		return rec != nil && rec.AccessToken == "AT-new"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.tokens.DeleteCalls)
}

func TestTokenManager_RefreshTimeoutFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", time.Minute)
	f.endpoint.RefreshGrant = &domain.TokenGrant{AccessToken: "AT-new", ExpiresIn: 3600}
	f.endpoint.RefreshDelay = time.Second

	m := f.tokenManager(func(c *TokenManagerConfig) { c.RefreshTimeout = 30 * time.Millisecond })
	_, err := m.GetValidAccessToken(context.Background(), testUserID)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, f.tokens.Len())
}

func TestTokenManager_WaitsForPeerInstance(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", time.Minute)
	f.endpoint.RefreshGrant = &domain.TokenGrant{AccessToken: "AT-mine", ExpiresIn: 3600}

	lockName := refreshLockPrefix + testUserID
	acquired, err := f.lock.Acquire(context.Background(), lockName, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// Another instance finishes its refresh shortly
	go func() {
		time.Sleep(100 * time.Millisecond)
		f.seedToken("AT-peer", time.Hour)
		_ = f.lock.Release(context.Background(), lockName)
	}()

	m := f.tokenManager(func(c *TokenManagerConfig) { c.Lock = f.lock })
	token, err := m.GetValidAccessToken(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, "AT-peer", token)
	assert.Equal(t, 0, f.endpoint.RefreshCalls())
}

func TestTokenManager_MissingTenantConfigKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.seedToken("AT-old", time.Minute)
	require.NoError(t, f.tenants.Delete(context.Background(), testUserID))

	_, err := f.tokenManager().GetValidAccessToken(context.Background(), testUserID)
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
	assert.Equal(t, 1, f.tokens.Len())
	assert.Equal(t, 0, f.endpoint.RefreshCalls())
}

func TestTokenManager_StatusAndDisconnect(t *testing.T) {
	f := newFixture(t)
	m := f.tokenManager()

	status, err := m.Status(context.Background(), testUserID)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Nil(t, status.ExpiresAt)

	f.seedToken("AT", time.Hour)
	status, err = m.Status(context.Background(), testUserID)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, testTenantID, status.TenantID)
	require.NotNil(t, status.ExpiresAt)

	require.NoError(t, m.Disconnect(context.Background(), testUserID))
	_, err = m.GetValidAccessToken(context.Background(), testUserID)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	// Disconnecting twice is fine
	require.NoError(t, m.Disconnect(context.Background(), testUserID))
}

func TestParseRefreshFailurePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RefreshFailurePolicy
		wantErr bool
	}{
		{"", FailClosed, false},
		{"always", FailClosed, false},
		{"FAIL-CLOSED", FailClosed, false},
		{"on-rejection", FailClosedOnRejection, false},
		{"sometimes", FailClosed, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRefreshFailurePolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "on-rejection", FailClosedOnRejection.String())
}
