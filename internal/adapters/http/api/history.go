package api

import (
	"net/http"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/domain/types"
)

// HistoryHandler serves a user's ledger, newest first.
type HistoryHandler struct {
	deps Dependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps Dependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandleGetHistory handles GET /trust/history?user_id=...&limit=... requests.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	principal, _ := auth.FromContext(r.Context())

	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}

	seq, err := h.deps.ListEvents(r.Context(), principal, userID, limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	// Collect before writing so a mid-stream store failure still yields a clean error response.
	out := []types.EventRecord{}
	for ev, err := range seq {
		if err != nil {
			writeError(w, Wrap(op, err))
			return
		}
		out = append(out, types.EventRecord{
			ID:             ev.ID,
			EventType:      ev.Type,
			WeightApplied:  ev.WeightApplied,
			ResultingScore: ev.ResultingScore,
			CreatedAt:      ev.CreatedAt,
			Context:        ev.Context,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
