package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/adapters/lock"
	"github.com/okian/trust/internal/adapters/repository"
	"github.com/okian/trust/internal/domain/catalog"
	"github.com/okian/trust/internal/domain/model"
	"github.com/okian/trust/internal/domain/scoring"
	"github.com/okian/trust/pkg/logger"
	"github.com/okian/trust/pkg/metrics"
)

var eventIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// Submission is one event to apply to a user's score.
type Submission struct {
	UserID    string
	EventType string
	Context   json.RawMessage
	// EventID is an optional caller-chosen id. Resubmitting it for the same
	// user and type returns the original outcome instead of a new event.
	EventID string
}

// Outcome is the committed result of a submission.
type Outcome struct {
	Event     model.Event
	Profile   model.Profile
	Duplicate bool
}

// RecordEvent appends one event to the user's ledger and updates the
// profile. Mutations of the same user are serialized by the guard; the
// write itself is not cancelled once it has started.
func (e *Engine) RecordEvent(ctx context.Context, requester auth.Principal, sub Submission) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := e.checkOpen(); err != nil {
		return Outcome{}, err
	}
	sub.UserID = strings.TrimSpace(sub.UserID)
	if sub.UserID == "" {
		metrics.RecordEventRejected("invalid_user")
		return Outcome{}, ErrInvalidUser
	}
	if sub.EventID != "" && !eventIDPattern.MatchString(sub.EventID) {
		metrics.RecordEventRejected("invalid_event_id")
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidEventID, sub.EventID)
	}
	if !e.policy.CanRecord(requester, sub.UserID) {
		metrics.RecordEventRejected("forbidden")
		return Outcome{}, fmt.Errorf("%w: %s may not record events", ErrForbidden, requester.UserID)
	}
	if err := e.catalog.Check(sub.EventType, sub.Context); err != nil {
		metrics.RecordEventRejected(rejectReason(err))
		return Outcome{}, err
	}

	var out Outcome
	err := e.guard.WithUserLock(ctx, sub.UserID, func(ctx context.Context) error {
		var err error
		out, err = e.apply(ctx, sub)
		return err
	})
	if err != nil {
		e.logFailure(ctx, sub, err)
		return Outcome{}, err
	}

	if out.Duplicate {
		metrics.RecordEventDuplicate()
		e.logger.Debug(ctx, "duplicate submission answered from ledger",
			logger.String("user_id", sub.UserID),
			logger.String("event_id", out.Event.ID),
		)
	}
	return out, nil
}

// apply runs under the user's lock.
func (e *Engine) apply(ctx context.Context, sub Submission) (Outcome, error) {
	if sub.EventID != "" {
		out, found, err := e.lookupEventID(ctx, sub)
		if err != nil || found {
			return out, err
		}
	}

	prev, err := e.profile(ctx, sub.UserID)
	if err != nil {
		return Outcome{}, err
	}

	createdAt := e.nextTimestamp(prev.UpdatedAt)
	var recent catalog.Summary
	if window := e.catalog.Window(sub.EventType); window > 0 {
		n, err := e.store.CountSince(ctx, sub.UserID, sub.EventType, createdAt.Add(-window))
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
		}
		recent.SameTypeInWindow = n
	}

	res, err := e.calc.Apply(scoring.Input{
		Current:   prev.Score,
		EventType: sub.EventType,
		Context:   sub.Context,
		Recent:    recent,
	})
	if err != nil {
		return Outcome{}, err
	}

	id := sub.EventID
	if id == "" {
		id = e.newID()
	}
	ev := model.Event{
		ID:             id,
		UserID:         sub.UserID,
		Type:           sub.EventType,
		WeightApplied:  res.DeltaApplied,
		BaseWeight:     res.BaseWeight,
		Context:        compactContext(sub.Context),
		Seq:            prev.Version + 1,
		CreatedAt:      createdAt,
		ResultingScore: res.NewScore,
	}
	next := model.Profile{
		UserID:    sub.UserID,
		Score:     res.NewScore,
		Level:     e.levels.LevelFor(res.NewScore),
		Version:   ev.Seq,
		UpdatedAt: createdAt,
	}

	// Past this point the caller can no longer abandon the write.
	if err := e.store.Append(context.WithoutCancel(ctx), ev, next); err != nil {
		// Another user's lock does not cover the event id, so a concurrent
		// submission may have claimed it after the lookup above.
		if sub.EventID != "" && errors.Is(err, repository.ErrConflict) {
			out, found, lookupErr := e.lookupEventID(context.WithoutCancel(ctx), sub)
			if lookupErr != nil || found {
				return out, lookupErr
			}
		}
		return Outcome{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	e.observe(prev, next, ev, res)
	return Outcome{Event: ev, Profile: next}, nil
}

// lookupEventID resolves a caller event id that is already in the ledger.
// It reports ErrEventIDConflict when the stored event belongs to another
// user or type, and the original outcome when it matches.
func (e *Engine) lookupEventID(ctx context.Context, sub Submission) (Outcome, bool, error) {
	existing, ok, err := e.store.FindEvent(ctx, sub.EventID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if !ok {
		return Outcome{}, false, nil
	}
	if existing.UserID != sub.UserID || existing.Type != sub.EventType {
		return Outcome{}, true, fmt.Errorf("%w: %s", ErrEventIDConflict, sub.EventID)
	}
	prof, err := e.profile(ctx, sub.UserID)
	if err != nil {
		return Outcome{}, true, err
	}
	return Outcome{Event: existing, Profile: prof, Duplicate: true}, true, nil
}

func (e *Engine) profile(ctx context.Context, userID string) (model.Profile, error) {
	p, ok, err := e.store.Profile(ctx, userID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if !ok {
		return e.emptyProfile(userID), nil
	}
	return p, nil
}

func (e *Engine) observe(prev, next model.Profile, ev model.Event, res scoring.Result) {
	metrics.RecordEventRecorded(ev.Type)
	metrics.RecordResultingScore(next.Score)
	if res.Clamped {
		bound := "max"
		if res.Resolved < 0 {
			bound = "min"
		}
		metrics.RecordScoreClamped(bound)
	}
	if prev.Level != next.Level {
		metrics.RecordLevelTransition(prev.Level, next.Level)
	}

	e.logger.Debug(context.Background(), "event applied",
		logger.String("user_id", ev.UserID),
		logger.String("event_type", ev.Type),
		logger.String("event_id", ev.ID),
		logger.Int64("seq", ev.Seq),
		logger.Int("weight_applied", ev.WeightApplied),
		logger.Int("score", next.Score),
		logger.String("level", next.Level),
		logger.Bool("capped", res.Capped),
	)
}

func (e *Engine) logFailure(ctx context.Context, sub Submission, err error) {
	fields := []logger.Field{
		logger.String("user_id", sub.UserID),
		logger.String("event_type", sub.EventType),
		logger.Error(err),
	}
	reason := rejectReason(err)
	metrics.RecordEventRejected(reason)
	metrics.RecordErrorByComponent("engine", reason)

	if errors.Is(err, ErrPersistenceFailure) {
		e.logger.Error(ctx, "event not recorded", fields...)
		return
	}
	e.logger.Warn(ctx, "event not recorded", fields...)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, catalog.ErrUnknownEventType):
		return "unknown_event_type"
	case errors.Is(err, catalog.ErrInvalidContext):
		return "invalid_context"
	case errors.Is(err, lock.ErrBusy):
		return "busy"
	case errors.Is(err, lock.ErrUnavailable):
		return "lock_unavailable"
	case errors.Is(err, ErrEventIDConflict):
		return "event_id_conflict"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	default:
		return "other"
	}
}

// compactContext drops an empty or null context.
func compactContext(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.RawMessage(trimmed)
}
