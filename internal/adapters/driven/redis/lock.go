package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/toolbridge/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*Lock)(nil)

const lockPrefix = "toolbridge:lock:"

// Lock implements DistributedLock with SET NX PX.
//
// Every successful Acquire writes a fresh token "<owner>:<nonce>" and Release
// deletes the key only while it still holds that token. A refresh that outlives
// its TTL therefore cannot release the lock a peer took over afterwards.
type Lock struct {
	client  redis.UniversalClient
	ownerID string

	mu   sync.Mutex
	held map[string]string // lock name -> token written by this instance
}

// NewLock creates a Redis-backed distributed lock. The client may be a
// single node, sentinel or cluster client.
func NewLock(client redis.UniversalClient) *Lock {
	hostname, _ := os.Hostname()
	return &Lock{
		client:  client,
		ownerID: fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), randomHex(4)),
		held:    make(map[string]string),
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire takes the named lock for ttl. It returns false while any holder,
// this instance included, has the lock.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := l.ownerID + ":" + randomHex(8)
	ok, err := l.client.SetNX(ctx, lockPrefix+name, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if ok {
		l.mu.Lock()
		l.held[name] = token
		l.mu.Unlock()
	}
	return ok, nil
}

// compareAndDelete removes KEYS[1] only if it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release drops the named lock if this instance still holds it.
// Releasing a lock that was never taken, or that expired, is a no-op.
func (l *Lock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	token, ok := l.held[name]
	delete(l.held, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	err := compareAndDelete.Run(ctx, l.client, []string{lockPrefix + name}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID identifies this instance; every token it writes starts with it.
func (l *Lock) OwnerID() string {
	return l.ownerID
}
