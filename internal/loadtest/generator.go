package loadtest

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/okian/trust/internal/domain/types"
)

// maxGeneratedCorrection bounds generated score_correction amounts.
const maxGeneratedCorrection = 50

// Submission is one planned POST /trust/events body.
type Submission struct {
	UserID    string          `json:"user_id"`
	EventType string          `json:"event_type"`
	Context   json.RawMessage `json:"context,omitempty"`
	EventID   string          `json:"event_id"`
}

// Plan is the ordered list of submissions; Repeats marks submissions that
// are sent a second time with the same event id.
type Plan struct {
	RunID       string
	Submissions []Submission
	Repeats     map[string]bool
}

// generatePlan draws EventsPerUser events for each of Users users from catalog.
func generatePlan(cfg *Config, catalog []types.CatalogEntryView) (Plan, error) {
	if len(catalog) == 0 {
		return Plan{}, fmt.Errorf("%w: the service recognizes no event types", ErrInvalidConfig)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	plan := Plan{
		RunID:       uuid.NewString()[:8],
		Submissions: make([]Submission, 0, cfg.Users*cfg.EventsPerUser),
		Repeats:     make(map[string]bool),
	}

	for u := 0; u < cfg.Users; u++ {
		userID := fmt.Sprintf("load-%s-%04d", plan.RunID, u)
		for i := 0; i < cfg.EventsPerUser; i++ {
			entry := catalog[rng.IntN(len(catalog))]
			sub := Submission{
				UserID:    userID,
				EventType: entry.EventType,
				Context:   generateContext(rng, entry, i),
				EventID:   fmt.Sprintf("%s.%04d.%04d", plan.RunID, u, i),
			}
			plan.Submissions = append(plan.Submissions, sub)
			if rng.Float64() < cfg.DuplicateRate {
				plan.Repeats[sub.EventID] = true
			}
		}
	}
	// Interleave users so the service sees concurrent writers per user.
	rng.Shuffle(len(plan.Submissions), func(i, j int) {
		plan.Submissions[i], plan.Submissions[j] = plan.Submissions[j], plan.Submissions[i]
	})
	return plan, nil
}

func generateContext(rng *rand.Rand, entry types.CatalogEntryView, seq int) json.RawMessage {
	fields := make(map[string]any)
	if entry.Correction {
		amount := rng.IntN(2*maxGeneratedCorrection) - maxGeneratedCorrection
		if amount == 0 {
			amount = 1
		}
		fields["amount"] = amount
		fields["reason"] = "load test"
	} else if len(entry.ContextKeys) > 0 {
		fields[entry.ContextKeys[0]] = fmt.Sprintf("ref-%d", seq)
	}
	if len(fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}
