// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// Event is one immutable ledger row: an action that contributed a score delta.
// Rows are never updated or deleted; corrections are new compensating events.
type Event struct {
	ID             string          // unique, never reused
	UserID         string          // subject whose score is affected
	Type           string          // catalog event type
	WeightApplied  int             // signed delta actually applied after modifiers and clamping
	BaseWeight     int             // catalog weight at the time of application, before modifiers
	Context        json.RawMessage // optional opaque payload (order id, dispute id, ...)
	Seq            int64           // ledger position per user, starting at 1
	CreatedAt      time.Time       // strictly increasing per user
	ResultingScore int             // score immediately after this event
}

// Profile is the cached projection of a user's ledger.
// Level always equals the level resolver's output for Score.
type Profile struct {
	UserID    string
	Score     int
	Level     string
	Version   int64 // seq of the last applied event; 0 for unseen users
	UpdatedAt time.Time
}

// Exists reports whether at least one event was applied to the profile.
func (p Profile) Exists() bool {
	return p.Version > 0
}
