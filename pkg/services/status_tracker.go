// Package services contains the business logic layer: import, validation,
// project and dictionary management.
package services

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/dqengine/pkg/models"
)

// StatusTracker holds the live validation status of every project. It is the
// only state shared between the goroutine running a validation and the
// handlers polling for progress, so reads must never block behind validation
// I/O. One instance is wired through the whole service graph.
type StatusTracker struct {
	mu       sync.RWMutex
	statuses map[uuid.UUID]models.ValidationStatus
}

// NewStatusTracker creates an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		statuses: make(map[uuid.UUID]models.ValidationStatus),
	}
}

// Get returns the current status snapshot. A project that never ran reads as
// the zero status: not running, zero progress.
func (t *StatusTracker) Get(projectID uuid.UUID) models.ValidationStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statuses[projectID]
}

// Set overwrites the whole status record.
func (t *StatusTracker) Set(projectID uuid.UUID, status models.ValidationStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[projectID] = status
}

// Clear removes a project's status entirely. Called on project deletion.
func (t *StatusTracker) Clear(projectID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, projectID)
}

// TryStart atomically claims the running flag for a project. It returns false
// when a validation is already in flight, making it the per-project mutex
// that keeps runs from overlapping.
func (t *StatusTracker) TryStart(projectID uuid.UUID, initial models.ValidationStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statuses[projectID].IsRunning {
		return false
	}
	initial.IsRunning = true
	t.statuses[projectID] = initial
	return true
}
