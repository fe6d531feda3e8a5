package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 30 * time.Second

// releaseScript deletes the lease key only when it still holds our token,
// so a lease that expired and was re-acquired elsewhere is never released
// by the old holder.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a distributed mutual-exclusion lease backed by Redis. One
// replica acquires the lease before running a sweep so concurrent replicas
// do not walk the same due records.
type Lease struct {
	client *goredis.Client
	name   string
	ttl    time.Duration
	token  func() string
}

func NewLease(client *goredis.Client, name string, ttl time.Duration) (*Lease, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil, fmt.Errorf("lease name is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}

	return &Lease{
		client: client,
		name:   normalized,
		ttl:    ttl,
		token:  uuid.NewString,
	}, nil
}

func (l *Lease) key() string {
	return fmt.Sprintf("lease:%s", l.name)
}

// TryAcquire attempts to take the lease. On success it returns a release
// func bound to this acquisition; on contention it returns ok=false.
func (l *Lease) TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	if l == nil || l.client == nil {
		return nil, false, fmt.Errorf("lease is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token := l.token()
	acquired, err := l.client.SetNX(ctx, l.key(), token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease %q: %w", l.name, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func(releaseCtx context.Context) error {
		if releaseCtx == nil {
			releaseCtx = context.Background()
		}
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key()}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lease %q: %w", l.name, err)
		}
		return nil
	}

	return release, true, nil
}
