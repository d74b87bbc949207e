package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/config"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/services"
)

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	AutoRevalidate bool   `json:"auto_revalidate"`
}

// UpdateProjectRequest is the body of PATCH /api/projects/{pid}.
type UpdateProjectRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	AutoRevalidate bool   `json:"auto_revalidate"`
}

// UpdateStructureRequest is the body of PUT /api/projects/{pid}/structure:
// the full file/sheet/field/rule snapshot.
type UpdateStructureRequest struct {
	Files []*models.File `json:"files"`
}

// ProjectsHandler handles project lifecycle and file HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	importService  services.ImportService
	cfg            *config.Config
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(
	projectService services.ProjectService,
	importService services.ImportService,
	cfg *config.Config,
	logger *zap.Logger,
) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		importService:  importService,
		cfg:            cfg,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects", h.Create)
	mux.HandleFunc("GET /api/projects", h.List)
	mux.HandleFunc("GET /api/projects/{pid}", h.Get)
	mux.HandleFunc("PATCH /api/projects/{pid}", h.UpdateMeta)
	mux.HandleFunc("DELETE /api/projects/{pid}", h.Delete)
	mux.HandleFunc("PUT /api/projects/{pid}/structure", h.UpdateStructure)
	mux.HandleFunc("POST /api/projects/{pid}/files", h.UploadFile)
	mux.HandleFunc("DELETE /api/projects/{pid}/files/{fid}", h.DeleteFile)
}

// Create handles POST /api/projects
// Registers the project and provisions its isolated store.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.Name == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_name", "Project name is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	project, err := h.projectService.Create(r.Context(), req.Name, req.Description, req.AutoRevalidate)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to create project")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, project); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects
// Returns registry metadata for every project, most recently updated first.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.List(r.Context())
	if err != nil {
		serviceError(w, h.logger, err, "Failed to list projects")
		return
	}
	if projects == nil {
		projects = []models.ProjectInfo{}
	}

	if err := WriteJSON(w, http.StatusOK, projects); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}
// Returns the project with its full file/sheet/field/rule tree.
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Get(r.Context(), projectID)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to get project")
		return
	}

	if err := WriteJSON(w, http.StatusOK, project); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateMeta handles PATCH /api/projects/{pid}
// Changes name, description and the auto-revalidate flag.
func (h *ProjectsHandler) UpdateMeta(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	project := &models.Project{
		ID:             projectID,
		Name:           req.Name,
		Description:    req.Description,
		AutoRevalidate: req.AutoRevalidate,
	}
	if err := h.projectService.UpdateMeta(r.Context(), project); err != nil {
		serviceError(w, h.logger, err, "Failed to update project")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/projects/{pid}
// Drops the project's store with everything in it.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.projectService.Delete(r.Context(), projectID); err != nil {
		serviceError(w, h.logger, err, "Failed to delete project")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateStructure handles PUT /api/projects/{pid}/structure
// Replaces the schema hierarchy with the submitted snapshot.
func (h *ProjectsHandler) UpdateStructure(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateStructureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.projectService.UpdateStructure(r.Context(), projectID, req.Files); err != nil {
		serviceError(w, h.logger, err, "Failed to update structure")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UploadFile handles POST /api/projects/{pid}/files
// Imports a spreadsheet sent as multipart form data under the "file" field.
func (h *ProjectsHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	// One extra byte so an oversized upload is detected by the service with
	// its own error instead of a bare connection reset.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Import.MaxFileSizeBytes+1)

	file, header, err := r.FormFile("file")
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_file", "Multipart field \"file\" is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to read upload")
		return
	}

	imported, err := h.importService.Upload(r.Context(), projectID, header.Filename, content)
	if err != nil {
		serviceError(w, h.logger, err, "Failed to import file")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, imported); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DeleteFile handles DELETE /api/projects/{pid}/files/{fid}
// Removes the file's structure rows and data tables.
func (h *ProjectsHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.projectService.DeleteFile(r.Context(), projectID, fileID); err != nil {
		serviceError(w, h.logger, err, "Failed to delete file")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
