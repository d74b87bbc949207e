package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/rules"
)

// RulesHandler serves rule-type metadata for rule pickers.
type RulesHandler struct {
	registry *rules.Registry
	logger   *zap.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(registry *rules.Registry, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers the rules handler's routes on the given mux.
func (h *RulesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rules", h.List)
}

// List handles GET /api/rules
// Returns metadata for every registered rule type, sorted by id.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.registry.List()); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
