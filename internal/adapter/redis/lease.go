package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultLeaseKey is the key collectors contend on for each cycle.
const DefaultLeaseKey = "elections:collector:lease"

// CycleLease lets several collectors share one schedule. The first instance
// to set the key owns the cycle until the TTL expires; the others skip it.
type CycleLease struct {
	rdb        *goredis.Client
	instanceID string
	key        string
	ttl        time.Duration
}

// NewCycleLease creates a lease held for ttl per acquisition. instanceID
// should be unique per process (e.g. hostname-PID); ttl should be a little
// shorter than the poll interval.
func NewCycleLease(rdb *goredis.Client, instanceID string, ttl time.Duration) *CycleLease {
	return &CycleLease{
		rdb:        rdb,
		instanceID: instanceID,
		key:        DefaultLeaseKey,
		ttl:        ttl,
	}
}

// TryAcquire reports whether this instance owns the current cycle. An
// instance that already holds the lease keeps it and extends the TTL.
func (l *CycleLease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire cycle lease: %w", err)
	}
	if ok {
		return true, nil
	}

	extended, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew cycle lease: %w", err)
	}
	return extended == 1, nil
}

// Release drops the lease if this instance still holds it. Called on
// shutdown so another replica can take over on its next tick.
func (l *CycleLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release cycle lease: %w", err)
	}
	return nil
}

var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
