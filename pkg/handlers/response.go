package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// serviceError maps a service-layer error to an HTTP error response. Unmapped
// errors become 500 with a generic message; the caller's context string is
// logged, never sent to the client.
func serviceError(w http.ResponseWriter, logger *zap.Logger, err error, context string) {
	code := http.StatusInternalServerError
	errorCode := "internal_error"
	message := context

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, errorCode, message = http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, apperrors.ErrConflict):
		code, errorCode, message = http.StatusConflict, "conflict", "Resource already exists"
	case errors.Is(err, apperrors.ErrValidationRunning):
		code, errorCode, message = http.StatusConflict, "validation_running", "A validation run is already in progress"
	case errors.Is(err, apperrors.ErrGroupInUse):
		code, errorCode, message = http.StatusConflict, "group_in_use", "Rule group is referenced by field rules"
	case errors.Is(err, apperrors.ErrRuleConfig):
		code, errorCode, message = http.StatusBadRequest, "invalid_rule_config", err.Error()
	case errors.Is(err, apperrors.ErrUnknownRuleType):
		code, errorCode, message = http.StatusBadRequest, "unknown_rule_type", err.Error()
	case errors.Is(err, apperrors.ErrUnsupportedFile):
		code, errorCode, message = http.StatusUnsupportedMediaType, "unsupported_file", "Only .xlsx and .xls files are accepted"
	case errors.Is(err, apperrors.ErrFileTooLarge):
		code, errorCode, message = http.StatusRequestEntityTooLarge, "file_too_large", "File exceeds the size limit"
	case errors.Is(err, apperrors.ErrTooManyRows):
		code, errorCode, message = http.StatusRequestEntityTooLarge, "too_many_rows", "Workbook exceeds the row limit"
	default:
		logger.Error(context, zap.Error(err))
	}

	if err := ErrorResponse(w, code, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
