package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/services"
)

// AddWordRequest is the body of POST /api/dictionary/words.
type AddWordRequest struct {
	Word string `json:"word"`
}

// DictionaryHandler manages the spell-check word list over HTTP.
type DictionaryHandler struct {
	dictionaryService services.DictionaryService
	logger            *zap.Logger
}

// NewDictionaryHandler creates a new dictionary handler.
func NewDictionaryHandler(dictionaryService services.DictionaryService, logger *zap.Logger) *DictionaryHandler {
	return &DictionaryHandler{dictionaryService: dictionaryService, logger: logger}
}

// RegisterRoutes registers the dictionary handler's routes on the given mux.
func (h *DictionaryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dictionary/words", h.List)
	mux.HandleFunc("POST /api/dictionary/words", h.Add)
	mux.HandleFunc("DELETE /api/dictionary/words/{word}", h.Remove)
}

// List handles GET /api/dictionary/words
func (h *DictionaryHandler) List(w http.ResponseWriter, r *http.Request) {
	words, err := h.dictionaryService.Words()
	if err != nil {
		serviceError(w, h.logger, err, "Failed to read dictionary")
		return
	}
	if words == nil {
		words = []string{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string][]string{"words": words}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Add handles POST /api/dictionary/words
func (h *DictionaryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddWordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.dictionaryService.Add(req.Word); err != nil {
		serviceError(w, h.logger, err, "Failed to add dictionary word")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, map[string]string{"status": "added"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Remove handles DELETE /api/dictionary/words/{word}
func (h *DictionaryHandler) Remove(w http.ResponseWriter, r *http.Request) {
	word := r.PathValue("word")

	if err := h.dictionaryService.Remove(word); err != nil {
		serviceError(w, h.logger, err, "Failed to remove dictionary word")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
