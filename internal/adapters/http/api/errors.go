package api

import (
	"errors"
	"net/http"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/adapters/lock"
	"github.com/okian/trust/internal/adapters/repository"
	service "github.com/okian/trust/internal/app"
	"github.com/okian/trust/internal/domain/catalog"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrEncode     = errors.New("response encoding failed")
)

// Error ties an error kind to the handler operation that produced it.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil && !errors.Is(e.Err, e.Kind):
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind classifies err as kind and attributes it to op.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap attributes err to op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "1"

// classify maps an error to its HTTP status and machine-readable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, catalog.ErrUnknownEventType):
		return http.StatusBadRequest, "unknown_event_type"
	case errors.Is(err, catalog.ErrInvalidContext):
		return http.StatusBadRequest, "invalid_context"
	case errors.Is(err, service.ErrInvalidUser), errors.Is(err, service.ErrInvalidEventID):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrEventIDConflict):
		return http.StatusConflict, "event_id_conflict"
	case errors.Is(err, lock.ErrBusy):
		return http.StatusServiceUnavailable, "busy"
	case errors.Is(err, lock.ErrUnavailable):
		return http.StatusServiceUnavailable, "lock_unavailable"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusServiceUnavailable, "write_conflict"
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, service.ErrPersistenceFailure):
		return http.StatusInternalServerError, "persistence_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
