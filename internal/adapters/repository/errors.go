package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrConflict          = errors.New("ledger write conflict")
	ErrNotFound          = errors.New("not found")
	ErrSequenceConsumed  = errors.New("event sequence already consumed")
	ErrInvalidAppend     = errors.New("event and profile disagree")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
