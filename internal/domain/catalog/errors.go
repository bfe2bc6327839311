package catalog

import "errors"

// Sentinel kinds for catalog errors.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidContext   = errors.New("invalid event context")
	ErrInvalidCatalog   = errors.New("invalid event catalog")
)
