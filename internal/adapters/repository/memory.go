package repository

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/okian/trust/internal/domain/model"
	"github.com/okian/trust/pkg/metrics"
)

const memoryDriver = "memory"

// MemoryStore keeps the ledger in process memory. It is used by tests and
// single-process deployments that accept losing state on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string][]model.Event // per user, oldest first
	byID     map[string]eventRef
	profiles map[string]model.Profile
	total    int64
}

type eventRef struct {
	userID string
	index  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string][]model.Event),
		byID:     make(map[string]eventRef),
		profiles: make(map[string]model.Profile),
	}
}

func (s *MemoryStore) Profile(ctx context.Context, userID string) (model.Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Profile{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	return p, ok, nil
}

func (s *MemoryStore) FindEvent(ctx context.Context, eventID string) (model.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byID[eventID]
	if !ok {
		return model.Event{}, false, nil
	}
	return cloneEvent(s.events[ref.userID][ref.index]), true, nil
}

func (s *MemoryStore) CountSince(ctx context.Context, userID, eventType string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	evs := s.events[userID]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].CreatedAt.Before(since) {
			break
		}
		if evs[i].Type == eventType {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Append(ctx context.Context, ev model.Event, p model.Profile) error {
	if err := checkAppend(ev, p); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreAppendLatency(memoryDriver, float64(time.Since(start).Microseconds())/1000)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.profiles[p.UserID]; cur.Version != ev.Seq-1 {
		metrics.RecordStoreConflict()
		return fmt.Errorf("%w: stored version %d, appending seq %d", ErrConflict, cur.Version, ev.Seq)
	}
	if _, dup := s.byID[ev.ID]; dup {
		return fmt.Errorf("%w: event id %s exists", ErrConflict, ev.ID)
	}

	s.events[ev.UserID] = append(s.events[ev.UserID], cloneEvent(ev))
	s.byID[ev.ID] = eventRef{userID: ev.UserID, index: len(s.events[ev.UserID]) - 1}
	s.profiles[p.UserID] = p
	s.total++
	return nil
}

func (s *MemoryStore) SaveProfile(ctx context.Context, p model.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.profiles[p.UserID]
	if !ok {
		return fmt.Errorf("profile %s: %w", p.UserID, ErrNotFound)
	}
	if cur.Version != p.Version {
		metrics.RecordStoreConflict()
		return fmt.Errorf("%w: stored version %d, saving %d", ErrConflict, cur.Version, p.Version)
	}
	s.profiles[p.UserID] = p
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, userID string, limit int) iter.Seq2[model.Event, error] {
	return once(func(yield func(model.Event, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(model.Event{}, err)
			return
		}

		s.mu.RLock()
		evs := s.events[userID]
		n := len(evs)
		if limit > 0 && limit < n {
			n = limit
		}
		page := make([]model.Event, 0, n)
		for i := len(evs) - 1; i >= 0 && len(page) < n; i-- {
			page = append(page, cloneEvent(evs[i]))
		}
		s.mu.RUnlock()

		fromSlice(page)(yield)
	})
}

func (s *MemoryStore) Replay(ctx context.Context, userID string, fn func(model.Event) error) error {
	s.mu.RLock()
	evs := slices.Clone(s.events[userID])
	s.mu.RUnlock()

	for _, ev := range evs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(cloneEvent(ev)); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Profiles: int64(len(s.profiles)), Events: s.total}, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneEvent(ev model.Event) model.Event {
	ev.Context = slices.Clone(ev.Context)
	return ev
}
