package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/services"
)

// RuleGroupsHandler handles rule group HTTP requests.
type RuleGroupsHandler struct {
	groupService services.RuleGroupService
	logger       *zap.Logger
}

// NewRuleGroupsHandler creates a new rule groups handler.
func NewRuleGroupsHandler(groupService services.RuleGroupService, logger *zap.Logger) *RuleGroupsHandler {
	return &RuleGroupsHandler{groupService: groupService, logger: logger}
}

// RegisterRoutes registers the rule groups handler's routes on the given mux.
func (h *RuleGroupsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects/{pid}/rule-groups", h.List)
	mux.HandleFunc("POST /api/projects/{pid}/rule-groups", h.Create)
	mux.HandleFunc("PUT /api/projects/{pid}/rule-groups/{gid}", h.Update)
	mux.HandleFunc("DELETE /api/projects/{pid}/rule-groups/{gid}", h.Delete)
}

// List handles GET /api/projects/{pid}/rule-groups
func (h *RuleGroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	groups, err := h.groupService.List(r.Context(), projectID)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to list rule groups")
		return
	}
	if groups == nil {
		groups = []*models.RuleGroup{}
	}

	if err := WriteJSON(w, http.StatusOK, groups); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/projects/{pid}/rule-groups
func (h *RuleGroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var group models.RuleGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}

	if err := h.groupService.Create(r.Context(), projectID, &group); err != nil {
		serviceError(w, h.logger, err, "Failed to create rule group")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, group); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/projects/{pid}/rule-groups/{gid}
func (h *RuleGroupsHandler) Update(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	groupID, ok := ParseGroupID(w, r, h.logger)
	if !ok {
		return
	}

	var group models.RuleGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	group.ID = groupID

	if err := h.groupService.Update(r.Context(), projectID, &group); err != nil {
		serviceError(w, h.logger, err, "Failed to update rule group")
		return
	}

	if err := WriteJSON(w, http.StatusOK, group); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{pid}/rule-groups/{gid}
func (h *RuleGroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	groupID, ok := ParseGroupID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.groupService.Delete(r.Context(), projectID, groupID); err != nil {
		serviceError(w, h.logger, err, "Failed to delete rule group")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
