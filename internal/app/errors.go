package service

import "errors"

// Sentinel kinds for engine errors. Catalog and lock errors
// (catalog.ErrUnknownEventType, catalog.ErrInvalidContext, lock.ErrBusy)
// pass through unchanged.
var (
	ErrForbidden          = errors.New("forbidden")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrEventIDConflict    = errors.New("event id already used for another user or event type")
	ErrInvalidUser        = errors.New("invalid user id")
	ErrInvalidEventID     = errors.New("invalid event id")
	ErrClosed             = errors.New("engine closed")
	ErrNoEvents           = errors.New("user has no events")
)
