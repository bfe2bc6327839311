// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/trust/internal/adapters/auth"
	service "github.com/okian/trust/internal/app"
	"github.com/okian/trust/internal/domain/types"
)

const maxEventBodyBytes = 64 << 10

// EventsHandler handles event submissions.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type eventRequest struct {
	UserID    string          `json:"user_id"`
	EventType string          `json:"event_type"`
	Context   json.RawMessage `json:"context,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
}

func (r eventRequest) validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.EventType) == "" {
		return errors.New("event_type is required")
	}
	return nil
}

// HandlePostEvent handles POST /trust/events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	principal, _ := auth.FromContext(r.Context())

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes))
	dec.DisallowUnknownFields()
	var req eventRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.RecordEvent(r.Context(), principal, service.Submission{
		UserID:    req.UserID,
		EventType: req.EventType,
		Context:   req.Context,
		EventID:   req.EventID,
	})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}

	status := http.StatusCreated
	if out.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, types.RecordResult{
		EventID:       out.Event.ID,
		Score:         out.Profile.Score,
		Level:         out.Profile.Level,
		WeightApplied: out.Event.WeightApplied,
		Duplicate:     out.Duplicate,
	})
}
