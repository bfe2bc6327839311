// Package service implements the trust score engine: the ledger mutation
// path, the history query service and score reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/adapters/lock"
	"github.com/okian/trust/internal/adapters/repository"
	"github.com/okian/trust/internal/domain/catalog"
	"github.com/okian/trust/internal/domain/level"
	"github.com/okian/trust/internal/domain/model"
	"github.com/okian/trust/internal/domain/scoring"
	"github.com/okian/trust/pkg/logger"
	"github.com/okian/trust/pkg/metrics"
)

// History page sizes.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Authorizer decides what a principal may do to a user's trust data.
type Authorizer interface {
	CanRecord(p auth.Principal, userID string) bool
	CanReadHistory(p auth.Principal, userID string) bool
	CanReadScore(p auth.Principal, userID string) bool
}

// Engine orchestrates catalog, calculator, level resolver, guard and store.
type Engine struct {
	mu     sync.RWMutex
	closed bool

	store   repository.Store
	catalog *catalog.Catalog
	calc    *scoring.Calculator
	levels  *level.Resolver
	guard   lock.Guard
	policy  Authorizer

	defaultLimit int
	maxLimit     int
	now          func() time.Time
	newID        func() string

	logger logger.Logger
}

// New builds an engine over store. Missing collaborators get defaults: the
// built-in catalog, [0, 1000] bounds, the default tiers, an in-process guard
// and the default access policy.
func New(store repository.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	e := &Engine{
		store:        store,
		defaultLimit: DefaultHistoryLimit,
		maxLimit:     MaxHistoryLimit,
		now:          time.Now,
		newID:        newEventID,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.catalog == nil {
		c, err := catalog.New()
		if err != nil {
			return nil, err
		}
		e.catalog = c
	}
	if e.calc == nil {
		c, err := scoring.NewCalculator(e.catalog)
		if err != nil {
			return nil, err
		}
		e.calc = c
	}
	minScore, maxScore := e.calc.Bounds()
	if e.levels == nil {
		r, err := level.NewResolver(level.DefaultTiers(), minScore, maxScore)
		if err != nil {
			return nil, err
		}
		e.levels = r
	}
	if lo, hi := e.levels.Bounds(); lo != minScore || hi != maxScore {
		return nil, fmt.Errorf("%w: tiers cover [%d, %d], scores are bounded to [%d, %d]",
			level.ErrInvalidTiers, lo, hi, minScore, maxScore)
	}
	if e.guard == nil {
		e.guard = lock.NewMemoryGuard()
	}
	if e.policy == nil {
		e.policy = auth.NewPolicy()
	}
	if e.logger == nil {
		e.logger = logger.Named("engine")
	}
	return e, nil
}

// Close releases the store. Calls after Close fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.logger.Info(context.Background(), "trust engine stopped")
	return e.store.Close()
}

func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Catalog returns the recognized event types.
func (e *Engine) Catalog() []catalog.Entry {
	return e.catalog.Entries()
}

// Levels returns the tier table.
func (e *Engine) Levels() []level.Tier {
	return e.levels.Tiers()
}

// Bounds returns the inclusive score range.
func (e *Engine) Bounds() (minScore, maxScore int) {
	return e.calc.Bounds()
}

// GetStats returns engine statistics for monitoring.
func (e *Engine) GetStats(ctx context.Context) map[string]any {
	minScore, maxScore := e.calc.Bounds()
	stats := map[string]any{
		"closed":      e.checkOpen() != nil,
		"min_score":   minScore,
		"max_score":   maxScore,
		"event_types": len(e.catalog.Entries()),
		"levels":      len(e.levels.Tiers()),
		"guard":       fmt.Sprint(e.guard),
	}
	if mg, ok := e.guard.(*lock.MemoryGuard); ok {
		stats["active_users"] = mg.Active()
	}

	st, err := e.store.Stats(ctx)
	if err != nil {
		e.logger.Warn(ctx, "store stats unavailable", logger.Error(err))
		stats["store_error"] = err.Error()
		return stats
	}
	stats["profiles"] = st.Profiles
	stats["events"] = st.Events
	metrics.UpdateProfilesTracked(int(st.Profiles))
	return stats
}

// emptyProfile is the projection of a user with no events.
func (e *Engine) emptyProfile(userID string) model.Profile {
	score := e.calc.Clamp(0)
	return model.Profile{UserID: userID, Score: score, Level: e.levels.LevelFor(score)}
}

// nextTimestamp returns the current time, pushed past prev when the clock
// has not advanced since the user's last event.
func (e *Engine) nextTimestamp(prev time.Time) time.Time {
	t := e.now().UTC().Truncate(time.Microsecond)
	if !prev.IsZero() && !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
