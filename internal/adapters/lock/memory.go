package lock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/trust/pkg/metrics"
)

const defaultShardCount = 64

// slot is one user's mutation slot. refs counts holders plus waiters so the
// slot can be dropped from its shard once nobody references it.
type slot struct {
	sem  chan struct{}
	refs int
}

type shard struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// MemoryGuard is an in-process Guard. Shard mutexes are held only for map
// bookkeeping, never while a caller's function runs.
type MemoryGuard struct {
	timeout    time.Duration
	shardCount int
	shards     []*shard
}

// NewMemoryGuard creates an in-process guard.
func NewMemoryGuard(opts ...Option) *MemoryGuard {
	g := &MemoryGuard{
		timeout:    DefaultTimeout,
		shardCount: defaultShardCount,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.shards = make([]*shard, g.shardCount)
	for i := range g.shards {
		g.shards[i] = &shard{slots: make(map[string]*slot)}
	}
	return g
}

// WithUserLock runs fn while holding userID's slot.
func (g *MemoryGuard) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	sh := g.shardFor(userID)
	s := sh.ref(userID)
	defer sh.unref(userID, s)

	start := time.Now()
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
	case <-timer.C:
		metrics.RecordLockBusy("memory")
		return fmt.Errorf("%w: waited %s for %s", ErrBusy, g.timeout, userID)
	case <-ctx.Done():
		metrics.RecordLockBusy("memory")
		return fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
	}
	metrics.RecordLockWait("memory", float64(time.Since(start).Microseconds())/1000)
	defer func() { <-s.sem }()

	return fn(ctx)
}

// Active returns the number of users with a holder or waiter.
func (g *MemoryGuard) Active() int {
	n := 0
	for _, sh := range g.shards {
		sh.mu.Lock()
		n += len(sh.slots)
		sh.mu.Unlock()
	}
	return n
}

func (g *MemoryGuard) shardFor(userID string) *shard {
	return g.shards[xxhash.Sum64String(userID)%uint64(len(g.shards))]
}

func (sh *shard) ref(userID string) *slot {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[userID]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		sh.slots[userID] = s
	}
	s.refs++
	return s
}

func (sh *shard) unref(userID string, s *slot) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(sh.slots, userID)
	}
}

// String describes the guard for logs.
func (g *MemoryGuard) String() string {
	return "memory(shards=" + strconv.Itoa(len(g.shards)) + ", timeout=" + g.timeout.String() + ")"
}
