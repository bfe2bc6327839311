package api

import (
	"net/http"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/domain/types"
)

// ScoreHandler serves the cached profile of a user.
type ScoreHandler struct {
	deps Dependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Dependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// HandleGetScore handles GET /trust/score?user_id=... requests.
func (h *ScoreHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_score"
	principal, _ := auth.FromContext(r.Context())

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	p, err := h.deps.Score(r.Context(), principal, userID)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	view := types.ScoreView{UserID: p.UserID, Score: p.Score, Level: p.Level}
	if p.Exists() {
		updated := p.UpdatedAt
		view.UpdatedAt = &updated
	}
	writeJSON(w, http.StatusOK, view)
}
