package config

import (
	"fmt"
	"strings"

	"github.com/okian/trust/internal/adapters/repository"
)

// Lock backends.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Auth modes.
const (
	AuthHeader = "header"
	AuthJWT    = "jwt"
)

// Validate reports the first invalid setting. The catalog and tier table are
// built once to surface their own validation errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format %q is not text or json", c.LogFormat)
	}
	if c.MinScore >= c.MaxScore {
		return invalid("min_score %d must be below max_score %d", c.MinScore, c.MaxScore)
	}
	if c.DefaultHistoryLimit <= 0 || c.MaxHistoryLimit < c.DefaultHistoryLimit {
		return invalid("history limits default=%d max=%d", c.DefaultHistoryLimit, c.MaxHistoryLimit)
	}
	if c.ShutdownTimeoutMS <= 0 || c.SystemMetricsIntervalMS <= 0 {
		return invalid("shutdown_timeout_ms and system_metrics_interval_ms must be positive")
	}

	switch strings.ToLower(c.StoreDriver) {
	case repository.DriverMemory:
	case repository.DriverSQLite, repository.DriverPostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			return invalid("store_dsn is required for %s", c.StoreDriver)
		}
	default:
		return invalid("store_driver %q is not memory, sqlite or postgres", c.StoreDriver)
	}

	if c.LockTimeoutMS <= 0 {
		return invalid("lock_timeout_ms must be positive")
	}
	switch c.LockBackend {
	case LockMemory:
		if c.LockShardCount <= 0 {
			return invalid("lock_shard_count must be positive")
		}
	case LockRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr is required for the redis lock backend")
		}
		if c.LeaseTTLMS <= c.LockTimeoutMS {
			return invalid("lease_ttl_ms %d must exceed lock_timeout_ms %d", c.LeaseTTLMS, c.LockTimeoutMS)
		}
	default:
		return invalid("lock_backend %q is not memory or redis", c.LockBackend)
	}

	switch c.AuthMode {
	case AuthHeader:
	case AuthJWT:
		if c.JWTSecret == "" {
			return invalid("jwt_secret is required for jwt auth")
		}
	default:
		return invalid("auth_mode %q is not header or jwt", c.AuthMode)
	}

	if _, err := c.BuildCatalog(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.BuildLevels(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
