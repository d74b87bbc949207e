package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/models"
)

func newValidationMux(svc *mockValidationService) *http.ServeMux {
	mux := http.NewServeMux()
	NewValidationHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestValidationHandler_Start(t *testing.T) {
	svc := &mockValidationService{status: models.ValidationStatus{IsRunning: true, Message: "Preparing validation"}}
	mux := newValidationMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+uuid.NewString()+"/validation", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var status models.ValidationStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.IsRunning)
}

func TestValidationHandler_StartAlreadyRunning(t *testing.T) {
	svc := &mockValidationService{startErr: apperrors.ErrValidationRunning}
	mux := newValidationMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+uuid.NewString()+"/validation", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestValidationHandler_Status(t *testing.T) {
	svc := &mockValidationService{status: models.ValidationStatus{Percentage: 42.5, Message: "Validating catalog.xlsx / Products / Price"}}
	mux := newValidationMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+uuid.NewString()+"/validation/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status models.ValidationStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 42.5, status.Percentage)
}

func TestValidationHandler_ResultsNotFound(t *testing.T) {
	svc := &mockValidationService{resultsErr: apperrors.ErrNotFound}
	mux := newValidationMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+uuid.NewString()+"/validation/results", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationHandler_Results(t *testing.T) {
	svc := &mockValidationService{results: &models.ValidationResults{TotalProcessedRows: 10}}
	mux := newValidationMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+uuid.NewString()+"/validation/results", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var results models.ValidationResults
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Equal(t, 10, results.TotalProcessedRows)
}

func TestValidationHandler_ConsistencyEmpty(t *testing.T) {
	mux := newValidationMux(&mockValidationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+uuid.NewString()+"/validation/consistency", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
