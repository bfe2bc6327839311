package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/trust/internal/domain/model"
	"github.com/okian/trust/pkg/logger"
	"github.com/okian/trust/pkg/metrics"
)

// Report compares a user's stored profile with a replay of the ledger.
type Report struct {
	UserID           string `json:"user_id"`
	Events           int    `json:"events"`
	StoredScore      int    `json:"stored_score"`
	FoldedScore      int    `json:"folded_score"`
	StoredLevel      string `json:"stored_level"`
	ExpectedLevel    string `json:"expected_level"`
	StoredVersion    int64  `json:"stored_version"`
	LastSeq          int64  `json:"last_seq"`
	SeqContiguous    bool   `json:"seq_contiguous"`
	TimesIncreasing  bool   `json:"times_increasing"`
	ResultsMatchFold bool   `json:"results_match_fold"`
}

// Consistent reports whether every check of the report passed.
func (r Report) Consistent() bool {
	return r.StoredScore == r.FoldedScore &&
		r.StoredLevel == r.ExpectedLevel &&
		r.StoredVersion == r.LastSeq &&
		r.SeqContiguous && r.TimesIncreasing && r.ResultsMatchFold
}

type fold struct {
	events    int
	score     int
	lastSeq   int64
	lastAt    time.Time
	seqOK     bool
	timesOK   bool
	resultsOK bool
}

func (e *Engine) replay(ctx context.Context, userID string) (fold, error) {
	f := fold{score: e.calc.Clamp(0), seqOK: true, timesOK: true, resultsOK: true}
	err := e.store.Replay(ctx, userID, func(ev model.Event) error {
		f.events++
		if ev.Seq != f.lastSeq+1 {
			f.seqOK = false
		}
		if !f.lastAt.IsZero() && !ev.CreatedAt.After(f.lastAt) {
			f.timesOK = false
		}
		f.score = e.calc.Clamp(f.score + ev.WeightApplied)
		if ev.ResultingScore != f.score {
			f.resultsOK = false
		}
		f.lastSeq = ev.Seq
		f.lastAt = ev.CreatedAt
		return nil
	})
	if err != nil {
		return fold{}, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return f, nil
}

// Verify replays userID's ledger and compares it with the stored profile.
// It reads without the guard, so a write racing with it may show up as a
// version mismatch.
func (e *Engine) Verify(ctx context.Context, userID string) (Report, error) {
	if err := e.checkOpen(); err != nil {
		return Report{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Report{}, ErrInvalidUser
	}

	stored, err := e.profile(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	f, err := e.replay(ctx, userID)
	if err != nil {
		return Report{}, err
	}

	r := Report{
		UserID:           userID,
		Events:           f.events,
		StoredScore:      stored.Score,
		FoldedScore:      f.score,
		StoredLevel:      stored.Level,
		ExpectedLevel:    e.levels.LevelFor(f.score),
		StoredVersion:    stored.Version,
		LastSeq:          f.lastSeq,
		SeqContiguous:    f.seqOK,
		TimesIncreasing:  f.timesOK,
		ResultsMatchFold: f.resultsOK,
	}
	if !r.Consistent() {
		metrics.RecordVerifyMismatch()
		e.logger.Warn(ctx, "profile disagrees with ledger",
			logger.String("user_id", userID),
			logger.Int("stored_score", r.StoredScore),
			logger.Int("folded_score", r.FoldedScore),
		)
	}
	return r, nil
}

// Rebuild rewrites userID's profile from the ledger under the user's lock.
// Events are never modified.
func (e *Engine) Rebuild(ctx context.Context, userID string) (model.Profile, error) {
	if err := e.checkOpen(); err != nil {
		return model.Profile{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Profile{}, ErrInvalidUser
	}

	var out model.Profile
	err := e.guard.WithUserLock(ctx, userID, func(ctx context.Context) error {
		f, err := e.replay(ctx, userID)
		if err != nil {
			return err
		}
		if f.events == 0 {
			return fmt.Errorf("%w: %s", ErrNoEvents, userID)
		}
		out = model.Profile{
			UserID:    userID,
			Score:     f.score,
			Level:     e.levels.LevelFor(f.score),
			Version:   f.lastSeq,
			UpdatedAt: f.lastAt,
		}
		if err := e.store.SaveProfile(context.WithoutCancel(ctx), out); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
		}
		return nil
	})
	if err != nil {
		return model.Profile{}, err
	}

	e.logger.Info(ctx, "profile rebuilt from ledger",
		logger.String("user_id", userID),
		logger.Int("score", out.Score),
		logger.Int64("version", out.Version),
	)
	return out, nil
}
