package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLeaseKey = "credits:sweep:lease"

// acquireLeaseScript sets the key when absent, or extends it when ARGV[1] already owns it.
var acquireLeaseScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// RedisLease is a SET NX PX lease shared by every replica pointing at the same Redis.
type RedisLease struct {
	client redis.Scripter
	key    string
	holder string
	ttl    time.Duration
}

// NewRedisLease returns a lease held by holder for ttl after each successful Acquire.
func NewRedisLease(client redis.Scripter, holder string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: defaultLeaseKey, holder: holder, ttl: ttl}
}

// Acquire takes the lease, or extends it when this holder already owns it. Both
// branches run in one script so an expired lease taken by another replica is never extended.
func (lease *RedisLease) Acquire(ctx context.Context) (bool, error) {
	held, err := acquireLeaseScript.Run(ctx, lease.client, []string{lease.key}, lease.holder, lease.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire sweep lease: %w", err)
	}
	return held == 1, nil
}
