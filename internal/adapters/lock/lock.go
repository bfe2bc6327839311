// Package lock serializes score mutations per user.
//
// A Guard admits at most one in-flight function per user id. Distinct users
// never wait on each other. Waiting is bounded: a caller that cannot acquire
// the user's slot within the configured timeout gets ErrBusy.
package lock

import (
	"context"
	"errors"
	"time"
)

// Sentinel kinds for lock errors.
var (
	ErrBusy        = errors.New("user is busy")
	ErrEmptyUserID = errors.New("empty user id")
	ErrUnavailable = errors.New("lock backend unavailable")
)

// DefaultTimeout bounds how long a caller waits for a user's slot.
const DefaultTimeout = 2 * time.Second

// Guard runs fn while holding the exclusive slot of userID.
type Guard interface {
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}
