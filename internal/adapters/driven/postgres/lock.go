package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*AdvisoryLock)(nil)

// AdvisoryLock implements DistributedLock using PostgreSQL session advisory locks.
//
// Advisory locks belong to a connection, so each held lock pins one pooled
// connection until Release. At most half of the pool is pinned at once; a
// caller that finds no free slot is told the lock is busy and retries, which
// leaves connections for the work done while holding a lock.
// The TTL is not enforced: the lock is held until released or the connection drops.
type AdvisoryLock struct {
	db    *DB
	slots chan struct{} // nil when the pool is unbounded

	mu   sync.Mutex
	held map[string]*sql.Conn // nil value: acquisition in progress
}

// NewAdvisoryLock creates a new PostgreSQL advisory lock adapter.
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	l := &AdvisoryLock{
		db:   db,
		held: make(map[string]*sql.Conn),
	}
	if n := pinLimit(db.Stats().MaxOpenConnections); n > 0 {
		l.slots = make(chan struct{}, n)
	}
	return l
}

// pinLimit returns how many connections locks may pin for a pool of
// maxOpen connections, or 0 when the pool is unbounded.
func pinLimit(maxOpen int) int {
	if maxOpen <= 0 {
		return 0
	}
	return max(maxOpen/2, 1)
}

// hashLockName converts a lock name to the 64-bit key PostgreSQL expects.
func hashLockName(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("toolbridge:lock:" + name))
	return int64(h.Sum64())
}

// Acquire attempts to acquire a named advisory lock without blocking on
// other holders. The instance mutex only guards the bookkeeping; the
// connection checkout and query run outside it.
func (l *AdvisoryLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	if _, busy := l.held[name]; busy {
		l.mu.Unlock()
		return false, nil
	}
	l.held[name] = nil
	l.mu.Unlock()

	conn, acquired, err := l.tryLock(ctx, name)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil || !acquired {
		delete(l.held, name)
		return false, err
	}
	l.held[name] = conn
	return true, nil
}

// tryLock pins a connection and runs pg_try_advisory_lock on it. The
// connection and its slot are kept only when the lock was taken.
func (l *AdvisoryLock) tryLock(ctx context.Context, name string) (*sql.Conn, bool, error) {
	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
		default:
			return nil, false, nil
		}
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		l.freeSlot()
		return nil, false, fmt.Errorf("get connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", hashLockName(name)).Scan(&acquired); err != nil {
		conn.Close()
		l.freeSlot()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		l.freeSlot()
		return nil, false, nil
	}
	return conn, true, nil
}

func (l *AdvisoryLock) freeSlot() {
	if l.slots != nil {
		<-l.slots
	}
}

// Release releases a named advisory lock and returns its connection to the pool.
// Safe to call even if the lock is not held.
func (l *AdvisoryLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	conn, ok := l.held[name]
	if !ok || conn == nil {
		l.mu.Unlock()
		return nil
	}
	delete(l.held, name)
	l.mu.Unlock()

	defer l.freeSlot()
	defer conn.Close()

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", hashLockName(name)).Scan(&released); err != nil {
		// Discard the connection so the session-level lock dies with it
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}

// Ping checks if the PostgreSQL backend is healthy.
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
