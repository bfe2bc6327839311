package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/adapters/lock"
	"github.com/okian/trust/internal/adapters/repository"
	"github.com/okian/trust/internal/domain/catalog"
	"github.com/okian/trust/internal/domain/level"
	"github.com/okian/trust/internal/domain/scoring"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration { return ms(c.ShutdownTimeoutMS) }

// SystemMetricsInterval returns the runtime gauge refresh period.
func (c *Config) SystemMetricsInterval() time.Duration { return ms(c.SystemMetricsIntervalMS) }

// StoreConfig returns the repository settings.
func (c *Config) StoreConfig() repository.Config {
	return repository.Config{
		Driver:       c.StoreDriver,
		DSN:          c.StoreDSN,
		MaxOpenConns: c.StoreMaxOpenConns,
		AutoMigrate:  c.AutoMigrate,
	}
}

// BuildCatalog returns the event catalog: the built-in types unless
// replaced, overlaid with the configured ones.
func (c *Config) BuildCatalog() (*catalog.Catalog, error) {
	var opts []catalog.Option
	if c.ReplaceDefaultEvents {
		opts = append(opts, catalog.WithoutDefaults())
	}
	names := make([]string, 0, len(c.Events))
	for name := range c.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ec := c.Events[name]
		e := catalog.Entry{
			Type:        name,
			Weight:      ec.Weight,
			ContextKeys: ec.ContextKeys,
			Correction:  ec.Correction,
		}
		if ec.WindowSeconds > 0 {
			e.Diminishing = &catalog.Diminishing{
				Window:    time.Duration(ec.WindowSeconds) * time.Second,
				FreeCount: ec.FreeCount,
				Factor:    ec.Factor,
			}
		}
		opts = append(opts, catalog.WithEntry(e))
	}
	opts = append(opts, catalog.WithMaxCorrection(c.MaxCorrection))
	return catalog.New(opts...)
}

// BuildLevels returns the tier resolver over [MinScore, MaxScore].
func (c *Config) BuildLevels() (*level.Resolver, error) {
	tiers := level.DefaultTiers()
	if len(c.Levels) > 0 {
		tiers = make([]level.Tier, 0, len(c.Levels))
		for _, l := range c.Levels {
			tiers = append(tiers, level.Tier{Name: l.Name, Min: l.Min, Max: l.Max})
		}
	}
	return level.NewResolver(tiers, c.MinScore, c.MaxScore)
}

// BuildCalculator returns a calculator over cat bounded by [MinScore, MaxScore].
func (c *Config) BuildCalculator(cat *catalog.Catalog) (*scoring.Calculator, error) {
	return scoring.NewCalculator(cat, scoring.WithBounds(c.MinScore, c.MaxScore))
}

// BuildGuard returns the per-user guard and a release func for any
// connection it opened.
func (c *Config) BuildGuard(ctx context.Context) (lock.Guard, func() error, error) {
	switch c.LockBackend {
	case LockRedis:
		client, err := lock.DialRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		g := lock.NewRedisGuard(client,
			lock.WithRedisTimeout(ms(c.LockTimeoutMS)),
			lock.WithLeaseTTL(ms(c.LeaseTTLMS)),
		)
		return g, client.Close, nil
	case LockMemory:
		g := lock.NewMemoryGuard(
			lock.WithTimeout(ms(c.LockTimeoutMS)),
			lock.WithShardCount(c.LockShardCount),
		)
		return g, func() error { return nil }, nil
	default:
		return nil, nil, invalid("lock_backend %q", c.LockBackend)
	}
}

// BuildAuthenticator returns the request authenticator for AuthMode.
func (c *Config) BuildAuthenticator() (auth.Authenticator, error) {
	switch c.AuthMode {
	case AuthJWT:
		opts := []auth.JWTOption{auth.WithLeeway(ms(c.JWTLeewayMS))}
		if c.JWTIssuer != "" {
			opts = append(opts, auth.WithIssuer(c.JWTIssuer))
		}
		a, err := auth.NewJWTAuthenticator(c.JWTSecret, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return a, nil
	case AuthHeader:
		return auth.NewHeaderAuthenticator(), nil
	default:
		return nil, invalid("auth_mode %q", c.AuthMode)
	}
}

// BuildPolicy returns the authorization policy for the configured roles.
// History of other users stays closed unless reader_roles is set. Options in
// extra are applied last.
func (c *Config) BuildPolicy(extra ...auth.PolicyOption) *auth.Policy {
	opts := []auth.PolicyOption{auth.WithReaderRoles(c.ReaderRoles...)}
	if len(c.WriterRoles) > 0 {
		opts = append(opts, auth.WithWriterRoles(c.WriterRoles...))
	}
	return auth.NewPolicy(append(opts, extra...)...)
}
