package service

import (
	"time"

	"github.com/okian/trust/internal/adapters/lock"
	"github.com/okian/trust/internal/domain/catalog"
	"github.com/okian/trust/internal/domain/level"
	"github.com/okian/trust/internal/domain/scoring"
	"github.com/okian/trust/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCatalog replaces the default event catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

// WithCalculator replaces the default calculator. It must resolve weights
// through the engine's catalog.
func WithCalculator(c *scoring.Calculator) Option {
	return func(e *Engine) {
		if c != nil {
			e.calc = c
		}
	}
}

// WithLevels replaces the default level resolver.
func WithLevels(r *level.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.levels = r
		}
	}
}

// WithGuard sets the per-user concurrency guard.
func WithGuard(g lock.Guard) Option {
	return func(e *Engine) {
		if g != nil {
			e.guard = g
		}
	}
}

// WithPolicy sets the access policy.
func WithPolicy(p Authorizer) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHistoryLimits sets the default and maximum history page sizes.
func WithHistoryLimits(defaultLimit, maxLimit int) Option {
	return func(e *Engine) {
		if defaultLimit > 0 && maxLimit >= defaultLimit {
			e.defaultLimit = defaultLimit
			e.maxLimit = maxLimit
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides server-side event id generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}
