package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/services"
)

// ValidationHandler handles validation run HTTP requests.
type ValidationHandler struct {
	validationService services.ValidationService
	logger            *zap.Logger
}

// NewValidationHandler creates a new validation handler.
func NewValidationHandler(validationService services.ValidationService, logger *zap.Logger) *ValidationHandler {
	return &ValidationHandler{
		validationService: validationService,
		logger:            logger,
	}
}

// RegisterRoutes registers the validation handler's routes on the given mux.
func (h *ValidationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects/{pid}/validation", h.Start)
	mux.HandleFunc("GET /api/projects/{pid}/validation/status", h.Status)
	mux.HandleFunc("GET /api/projects/{pid}/validation/results", h.Results)
	mux.HandleFunc("GET /api/projects/{pid}/validation/consistency", h.Consistency)
}

// Start handles POST /api/projects/{pid}/validation
// Launches an asynchronous run and returns the initial status.
func (h *ValidationHandler) Start(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	status, err := h.validationService.Start(r.Context(), projectID)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to start validation")
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, status); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Status handles GET /api/projects/{pid}/validation/status
// Returns the live progress snapshot; safe to poll.
func (h *ValidationHandler) Status(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	status := h.validationService.Status(projectID)
	if err := WriteJSON(w, http.StatusOK, status); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Results handles GET /api/projects/{pid}/validation/results
// Returns the report of the last completed run.
func (h *ValidationHandler) Results(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	results, err := h.validationService.LatestResults(r.Context(), projectID)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to load validation results")
		return
	}

	if err := WriteJSON(w, http.StatusOK, results); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Consistency handles GET /api/projects/{pid}/validation/consistency
// Compares declared sheet row counts against the backing tables.
func (h *ValidationHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.validationService.CheckConsistency(r.Context(), projectID)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to check consistency")
		return
	}
	if report == nil {
		report = []models.SheetConsistency{}
	}

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
