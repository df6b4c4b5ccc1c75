package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
	"github.com/custodia-labs/toolbridge/internal/metrics"
)

const (
	// DefaultJanitorInterval is how often expired PKCE sessions are swept.
	DefaultJanitorInterval = 5 * time.Minute

	janitorLockName = "janitor:pkce-sessions"
)

// Janitor periodically removes expired PKCE sessions.
type Janitor struct {
	sessions driven.PKCESessionStore
	lock     driven.DistributedLock
	metrics  *metrics.Recorder
	logger   *slog.Logger
	interval time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// JanitorConfig holds configuration for the janitor.
type JanitorConfig struct {
	Sessions driven.PKCESessionStore
	Lock     driven.DistributedLock // Optional: only the instance holding the lock sweeps
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Interval time.Duration
}

// NewJanitor creates a new session janitor.
func NewJanitor(cfg JanitorConfig) *Janitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}

	return &Janitor{
		sessions: cfg.Sessions,
		lock:     cfg.Lock,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "janitor"),
		interval: interval,
	}
}

// Start begins the sweep loop.
// It runs until Stop is called or context is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	j.logger.Info("janitor starting", "interval", j.interval)

	go j.run(ctx)
	return nil
}

// Stop gracefully stops the janitor.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopCh)
	j.mu.Unlock()

	<-j.doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()

	j.logger.Info("janitor stopped")
}

// Wait blocks until the janitor stops.
func (j *Janitor) Wait() {
	j.mu.RLock()
	done := j.doneCh
	j.mu.RUnlock()
	if done != nil {
		<-done
	}
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep removes expired sessions once and returns how many were removed.
// When a lock is configured and another instance holds it, Sweep does nothing.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	if j.lock != nil {
		acquired, err := j.lock.Acquire(ctx, janitorLockName, j.interval)
		if err != nil {
			j.logger.Warn("janitor lock failed", "error", err)
			return 0
		}
		if !acquired {
			j.logger.Debug("janitor lock held elsewhere")
			return 0
		}
		defer func() {
			if err := j.lock.Release(context.WithoutCancel(ctx), janitorLockName); err != nil {
				j.logger.Warn("janitor lock release failed", "error", err)
			}
		}()
	}

	removed, err := j.sessions.Cleanup(ctx)
	if err != nil {
		j.logger.Error("pkce session cleanup failed", "error", err)
		return 0
	}
	if removed > 0 {
		j.logger.Info("expired pkce sessions removed", "count", removed)
	}
	j.metrics.Swept(removed)
	return removed
}
