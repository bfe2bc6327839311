// Package types contains the JSON shapes exchanged over the HTTP API.
package types

import (
	"encoding/json"
	"time"
)

// EventRecord is the public view of a ledger row.
type EventRecord struct {
	ID             string          `json:"id"`
	EventType      string          `json:"event_type"`
	WeightApplied  int             `json:"weight_applied"`
	ResultingScore int             `json:"resulting_score"`
	CreatedAt      time.Time       `json:"created_at"`
	Context        json.RawMessage `json:"context,omitempty"`
}

// ScoreView is the public view of a trust profile.
type ScoreView struct {
	UserID    string     `json:"user_id"`
	Score     int        `json:"score"`
	Level     string     `json:"level"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// RecordResult is returned after an event submission.
type RecordResult struct {
	EventID       string `json:"event_id"`
	Score         int    `json:"score"`
	Level         string `json:"level"`
	WeightApplied int    `json:"weight_applied"`
	Duplicate     bool   `json:"duplicate"`
}

// LevelView describes one trust tier.
type LevelView struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// CatalogEntryView describes one recognized event type.
type CatalogEntryView struct {
	EventType   string   `json:"event_type"`
	Weight      int      `json:"weight"`
	ContextKeys []string `json:"context_keys,omitempty"`
	Correction  bool     `json:"correction,omitempty"`
}
