package loadtest

import (
	"fmt"
	"slices"

	"github.com/okian/trust/internal/domain/types"
)

// Checks reported in violations.
const (
	checkBounds   = "bounds"
	checkFold     = "fold"
	checkLevel    = "level"
	checkOrder    = "order"
	checkCount    = "count"
	checkUnknown  = "unknown_event"
	checkTerminal = "terminal_score"
)

// userLedger is what the service returned for one user.
type userLedger struct {
	UserID  string
	History []types.EventRecord // newest first, as served
	Score   types.ScoreView
}

// expectation is what the load tester knows about one user.
type expectation struct {
	// Acknowledged event ids got a 201 or 200 and must be present.
	Acknowledged map[string]bool
	// Planned event ids are the only ones that may be present.
	Planned map[string]bool
}

// verifyUser checks the ledger of one user against the tier table and what
// was submitted.
func verifyUser(l userLedger, exp expectation, levels []types.LevelView) []Violation {
	var out []Violation
	report := func(check, format string, args ...any) {
		out = append(out, Violation{UserID: l.UserID, Check: check, Detail: fmt.Sprintf(format, args...)})
	}
	if len(levels) == 0 {
		report(checkLevel, "empty tier table")
		return out
	}
	minScore, maxScore := levels[0].Min, levels[len(levels)-1].Max

	oldestFirst := slices.Clone(l.History)
	slices.Reverse(oldestFirst)

	seen := make(map[string]bool, len(oldestFirst))
	// Unseen users start at zero pulled into the bounds.
	score := min(max(0, minScore), maxScore)
	for i, ev := range oldestFirst {
		seen[ev.ID] = true
		if !exp.Planned[ev.ID] {
			report(checkUnknown, "event %s was never submitted", ev.ID)
		}
		if ev.ResultingScore < minScore || ev.ResultingScore > maxScore {
			report(checkBounds, "event %s resulting score %d outside [%d, %d]", ev.ID, ev.ResultingScore, minScore, maxScore)
		}
		if score+ev.WeightApplied != ev.ResultingScore {
			report(checkFold, "event %s: %d%+d != %d", ev.ID, score, ev.WeightApplied, ev.ResultingScore)
		}
		score = ev.ResultingScore
		if i > 0 && !ev.CreatedAt.After(oldestFirst[i-1].CreatedAt) {
			report(checkOrder, "event %s is not after %s", ev.ID, oldestFirst[i-1].ID)
		}
	}

	for id := range exp.Acknowledged {
		if !seen[id] {
			report(checkCount, "acknowledged event %s is missing", id)
		}
	}
	if l.Score.Score != score {
		report(checkTerminal, "profile score %d, ledger ends at %d", l.Score.Score, score)
	}
	if l.Score.Score < minScore || l.Score.Score > maxScore {
		report(checkBounds, "profile score %d outside [%d, %d]", l.Score.Score, minScore, maxScore)
	}
	if want := levelFor(levels, l.Score.Score); l.Score.Level != want {
		report(checkLevel, "profile level %q, score %d maps to %q", l.Score.Level, l.Score.Score, want)
	}
	return out
}

func levelFor(levels []types.LevelView, score int) string {
	for _, t := range levels {
		if score >= t.Min && score <= t.Max {
			return t.Name
		}
	}
	return ""
}
