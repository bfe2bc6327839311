// Package loadtest drives a running trust service over HTTP and checks the
// ledger invariants of every user it touched.
package loadtest

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrInvalidConfig = errors.New("invalid load test config")
	ErrUnhealthy     = errors.New("service is not healthy")
	ErrViolations    = errors.New("ledger invariants violated")
)

// Config holds load test settings.
type Config struct {
	BaseURL       string
	Users         int
	EventsPerUser int
	// DuplicateRate is the fraction of submissions sent twice with the same event id.
	DuplicateRate float64
	Workers       int
	Timeout       time.Duration
	// MaxRetries bounds resubmissions after a 503.
	MaxRetries int
	// HistoryLimit is the page size used to read back a user's ledger. It
	// must not exceed the service's max_history_limit.
	HistoryLimit int
	Seed       uint64
	// Operator identifies the load tester; it is sent as gateway headers
	// unless Token is set.
	Operator string
	Roles    []string
	Token    string
	Verbose  bool
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is required"))
	case c.Users <= 0 || c.EventsPerUser <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("users and events per user must be positive"))
	case c.Workers <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("workers must be positive"))
	case c.EventsPerUser > c.HistoryLimit:
		return errors.Join(ErrInvalidConfig, errors.New("events per user exceed the history limit and could not be verified"))
	case c.DuplicateRate < 0 || c.DuplicateRate > 1:
		return errors.Join(ErrInvalidConfig, errors.New("duplicate rate must be within [0, 1]"))
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	StartTime       time.Time
	Duration        time.Duration
	EventsPlanned   int
	EventsSubmitted int
	EventsCreated   int
	EventsDuplicate int
	EventsRetried   int
	EventsFailed    int
	UsersVerified   int
	Violations      []Violation
}

// Violation is one broken invariant for a user.
type Violation struct {
	UserID string
	Check  string
	Detail string
}
