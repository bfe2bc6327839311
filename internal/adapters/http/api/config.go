package api

import (
	"net/http"

	"github.com/okian/trust/internal/domain/types"
)

// ConfigHandler exposes the level table and event catalog.
type ConfigHandler struct {
	deps Dependencies
}

// NewConfigHandler creates a new configuration view handler.
func NewConfigHandler(deps Dependencies) *ConfigHandler {
	return &ConfigHandler{deps: deps}
}

// HandleLevels handles GET /trust/levels requests.
func (h *ConfigHandler) HandleLevels(w http.ResponseWriter, _ *http.Request) {
	tiers := h.deps.Levels()
	out := make([]types.LevelView, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, types.LevelView{Name: t.Name, Min: t.Min, Max: t.Max})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCatalog handles GET /trust/catalog requests.
func (h *ConfigHandler) HandleCatalog(w http.ResponseWriter, _ *http.Request) {
	entries := h.deps.Catalog()
	out := make([]types.CatalogEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.CatalogEntryView{
			EventType:   e.Type,
			Weight:      e.Weight,
			ContextKeys: e.ContextKeys,
			Correction:  e.Correction,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
