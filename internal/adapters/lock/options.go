package lock

import "time"

// Option applies a configuration option to the MemoryGuard.
type Option func(*MemoryGuard)

// WithTimeout sets the maximum wait for a user's slot.
func WithTimeout(timeout time.Duration) Option {
	return func(g *MemoryGuard) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithShardCount sets the number of map shards holding per-user slots.
func WithShardCount(n int) Option {
	return func(g *MemoryGuard) {
		if n > 0 {
			g.shardCount = n
		}
	}
}

// RedisOption applies a configuration option to the RedisGuard.
type RedisOption func(*RedisGuard)

// WithRedisTimeout sets the maximum wait for a user's lease.
func WithRedisTimeout(timeout time.Duration) RedisOption {
	return func(g *RedisGuard) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithLeaseTTL sets how long a lease survives a crashed holder.
func WithLeaseTTL(ttl time.Duration) RedisOption {
	return func(g *RedisGuard) {
		if ttl > 0 {
			g.leaseTTL = ttl
		}
	}
}

// WithKeyPrefix sets the prefix of lease keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(g *RedisGuard) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}
