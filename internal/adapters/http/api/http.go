// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strconv"

	"github.com/okian/trust/internal/adapters/auth"
	service "github.com/okian/trust/internal/app"
	"github.com/okian/trust/internal/domain/catalog"
	"github.com/okian/trust/internal/domain/level"
	"github.com/okian/trust/internal/domain/model"
	"github.com/okian/trust/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the engine.
type Dependencies interface {
	RecordEvent(ctx context.Context, requester auth.Principal, sub service.Submission) (service.Outcome, error)
	ListEvents(ctx context.Context, requester auth.Principal, userID string, limit int) (iter.Seq2[model.Event, error], error)
	Score(ctx context.Context, requester auth.Principal, userID string) (model.Profile, error)
	Catalog() []catalog.Entry
	Levels() []level.Tier
}

// Server wires HTTP routes for the trust API.
type Server struct {
	authn          auth.Authenticator
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	eventsHandler  *EventsHandler
	historyHandler *HistoryHandler
	scoreHandler   *ScoreHandler
	configHandler  *ConfigHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, authn auth.Authenticator) *Server {
	return &Server{
		authn:          authn,
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		eventsHandler:  NewEventsHandler(deps),
		historyHandler: NewHistoryHandler(deps),
		scoreHandler:   NewScoreHandler(deps),
		configHandler:  NewConfigHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /trust/levels", MetricsMiddleware(AuthMiddleware(s.authn, s.configHandler.HandleLevels), "levels"))
	mux.HandleFunc("GET /trust/catalog", MetricsMiddleware(AuthMiddleware(s.authn, s.configHandler.HandleCatalog), "catalog"))
	mux.HandleFunc("POST /trust/events", MetricsMiddleware(AuthMiddleware(s.authn, s.eventsHandler.HandlePostEvent), "events"))
	mux.HandleFunc("GET /trust/history", MetricsMiddleware(AuthMiddleware(s.authn, s.historyHandler.HandleGetHistory), "history"))
	mux.HandleFunc("GET /trust/score", MetricsMiddleware(AuthMiddleware(s.authn, s.scoreHandler.HandleGetScore), "score"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Warn(context.Background(), "write response", logger.Error(WrapKind("api.write_json", ErrEncode, err)))
	}
}

// writeError renders err with the status and code derived from its kind.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// parseLimit reads an optional non-negative integer; absent means 0.
func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
