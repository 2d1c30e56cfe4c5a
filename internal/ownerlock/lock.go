package ownerlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when another reconcile-and-provision cycle already
// holds the owner's lock.
var ErrBusy = errors.New("owner is busy with another request")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes reconcile-and-provision cycles per owner. Two
// concurrent requests for the same owner would otherwise interleave their
// artifact writes and race on the single preview container.
type Locker interface {
	// Acquire takes the owner's lock and returns a release function.
	// It fails with ErrBusy instead of queueing.
	Acquire(ctx context.Context, ownerID string) (release func(), err error)
}

// RedisLocker implements Locker with a SETNX lease. The lease TTL bounds
// lock lifetime when a holder crashes mid-cycle; it must exceed the
// generation timeout so a live cycle never loses its lock.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-backed owner locker.
func NewRedisLocker(addr, password, prefix string, ttl time.Duration) (*RedisLocker, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("owner locker redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "appforge:ownerlock"
	}
	if ttl <= 0 {
		ttl = 6 * time.Minute
	}
	return &RedisLocker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Acquire takes the owner's lock via SET NX with a lease token. Release is
// compare-and-delete so an expired holder cannot free a successor's lock.
func (l *RedisLocker) Acquire(ctx context.Context, ownerID string) (func(), error) {
	key := l.prefix + ":" + strings.TrimSpace(ownerID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire owner lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(ctx, l.client, []string{key}, token).Result()
	}
	return release, nil
}
