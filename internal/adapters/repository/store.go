// Package repository persists the score ledger and the profile projection.
package repository

import (
	"context"
	"iter"
	"time"

	"github.com/okian/trust/internal/domain/model"
)

// Store provides read/write access to the ledger.
//
// Append is the only way events enter the ledger. It commits the event and
// the profile produced by it as one unit: either both become visible or
// neither does.
type Store interface {
	// Profile returns the stored projection for userID; ok is false for users
	// without events.
	Profile(ctx context.Context, userID string) (p model.Profile, ok bool, err error)

	// FindEvent looks up an event by id.
	FindEvent(ctx context.Context, eventID string) (e model.Event, ok bool, err error)

	// CountSince counts userID's events of eventType created at or after since.
	CountSince(ctx context.Context, userID, eventType string, since time.Time) (int, error)

	// Append records ev and replaces the profile. p.Version must equal ev.Seq
	// and the stored version must be ev.Seq-1, otherwise ErrConflict.
	Append(ctx context.Context, ev model.Event, p model.Profile) error

	// SaveProfile overwrites score and level of an existing profile whose
	// stored version equals p.Version. A missing profile is ErrNotFound and
	// a version mismatch is ErrConflict.
	SaveProfile(ctx context.Context, p model.Profile) error

	// Events yields up to limit of userID's events, newest first. The query
	// runs when iteration starts; the sequence can be ranged over once.
	Events(ctx context.Context, userID string, limit int) iter.Seq2[model.Event, error]

	// Replay calls fn for every event of userID, oldest first.
	Replay(ctx context.Context, userID string, fn func(model.Event) error) error

	// Stats reports ledger totals.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats summarizes the ledger contents.
type Stats struct {
	Profiles int64 `json:"profiles"`
	Events   int64 `json:"events"`
}

func checkAppend(ev model.Event, p model.Profile) error {
	if ev.UserID == "" || ev.ID == "" || ev.UserID != p.UserID || ev.Seq < 1 || p.Version != ev.Seq {
		return ErrInvalidAppend
	}
	return nil
}
