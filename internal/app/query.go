package service

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/domain/model"
	"github.com/okian/trust/pkg/metrics"
)

// ListEvents returns userID's events, newest first. limit <= 0 selects the
// default page size and larger values are cut to the maximum. The sequence
// reads the ledger when ranged over and can be consumed once. No lock is
// taken: a concurrent write is either fully visible or not at all.
func (e *Engine) ListEvents(ctx context.Context, requester auth.Principal, userID string, limit int) (iter.Seq2[model.Event, error], error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if !e.policy.CanReadHistory(requester, userID) {
		metrics.RecordErrorByComponent("engine", "forbidden")
		return nil, fmt.Errorf("%w: %s may not read the history of %s", ErrForbidden, requester.UserID, userID)
	}

	metrics.RecordHistoryQuery()
	return e.store.Events(ctx, userID, e.clampLimit(limit)), nil
}

// Score returns the cached profile of userID. Users without events get the
// starting score and its level.
func (e *Engine) Score(ctx context.Context, requester auth.Principal, userID string) (model.Profile, error) {
	if err := e.checkOpen(); err != nil {
		return model.Profile{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Profile{}, ErrInvalidUser
	}
	if !e.policy.CanReadScore(requester, userID) {
		return model.Profile{}, fmt.Errorf("%w: %s may not read scores", ErrForbidden, requester.UserID)
	}
	return e.profile(ctx, userID)
}

func (e *Engine) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return e.defaultLimit
	case limit > e.maxLimit:
		return e.maxLimit
	default:
		return limit
	}
}
