package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/okian/trust/pkg/metrics"
)

const (
	defaultLeaseTTL  = 10 * time.Second
	defaultKeyPrefix = "trust:lock:"
	pollMinInterval  = 5 * time.Millisecond
	pollMaxInterval  = 100 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// Deletes the lease only when it still carries the holder's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard is a Guard shared by every service instance pointing at the
// same Redis. Leases expire after the lease TTL so a crashed holder cannot
// wedge a user; the store's version check rejects a holder whose lease
// expired mid-write.
type RedisGuard struct {
	client   goredis.UniversalClient
	timeout  time.Duration
	leaseTTL time.Duration
	prefix   string
}

// NewRedisGuard creates a guard over client.
func NewRedisGuard(client goredis.UniversalClient, opts ...RedisOption) *RedisGuard {
	g := &RedisGuard{
		client:   client,
		timeout:  DefaultTimeout,
		leaseTTL: defaultLeaseTTL,
		prefix:   defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %w", ErrUnavailable, err)
	}
	return rdb, nil
}

// WithUserLock runs fn while holding userID's lease.
func (g *RedisGuard) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	key := g.prefix + userID
	token := uuid.NewString()
	start := time.Now()

	if err := g.acquire(ctx, key, token); err != nil {
		if errors.Is(err, ErrBusy) {
			metrics.RecordLockBusy("redis")
		}
		return err
	}
	metrics.RecordLockWait("redis", float64(time.Since(start).Microseconds())/1000)

	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_ = releaseScript.Run(relCtx, g.client, []string{key}, token).Err()
	}()

	return fn(ctx)
}

func (g *RedisGuard) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(g.timeout)
	wait := pollMinInterval

	for {
		ok, err := g.client.SetNX(ctx, key, token, g.leaseTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
			}
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: waited %s for %s", ErrBusy, g.timeout, key)
		}
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
		case <-timer.C:
		}

		wait *= 2
		if wait > pollMaxInterval {
			wait = pollMaxInterval
		}
	}
}

// String describes the guard for logs.
func (g *RedisGuard) String() string {
	return "redis(prefix=" + g.prefix + ", timeout=" + g.timeout.String() + ", lease=" + g.leaseTTL.String() + ")"
}
