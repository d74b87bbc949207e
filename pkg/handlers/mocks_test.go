package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/dqengine/pkg/models"
)

// mockProjectService implements services.ProjectService for handler tests.
type mockProjectService struct {
	project     *models.Project
	projects    []models.ProjectInfo
	createErr   error
	getErr      error
	deleteErr   error
	updateErr   error
	structErr   error
	deleteFiles []uuid.UUID
}

func (m *mockProjectService) Create(ctx context.Context, name, description string, autoRevalidate bool) (*models.Project, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Project{ID: uuid.New(), Name: name, Description: description, AutoRevalidate: autoRevalidate}, nil
}
func (m *mockProjectService) List(ctx context.Context) ([]models.ProjectInfo, error) {
	return m.projects, nil
}
func (m *mockProjectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.project, nil
}
func (m *mockProjectService) UpdateMeta(ctx context.Context, project *models.Project) error {
	return m.updateErr
}
func (m *mockProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteErr
}
func (m *mockProjectService) UpdateStructure(ctx context.Context, projectID uuid.UUID, files []*models.File) error {
	return m.structErr
}
func (m *mockProjectService) DeleteFile(ctx context.Context, projectID, fileID uuid.UUID) error {
	m.deleteFiles = append(m.deleteFiles, fileID)
	return nil
}

// mockImportService implements services.ImportService for handler tests.
type mockImportService struct {
	file      *models.File
	uploadErr error
	filename  string
	size      int
}

func (m *mockImportService) Upload(ctx context.Context, projectID uuid.UUID, filename string, content []byte) (*models.File, error) {
	m.filename = filename
	m.size = len(content)
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	return m.file, nil
}

// mockValidationService implements services.ValidationService for handler tests.
type mockValidationService struct {
	status     models.ValidationStatus
	results    *models.ValidationResults
	report     []models.SheetConsistency
	startErr   error
	resultsErr error
}

func (m *mockValidationService) Start(ctx context.Context, projectID uuid.UUID) (models.ValidationStatus, error) {
	if m.startErr != nil {
		return m.status, m.startErr
	}
	return m.status, nil
}
func (m *mockValidationService) Status(projectID uuid.UUID) models.ValidationStatus {
	return m.status
}
func (m *mockValidationService) LatestResults(ctx context.Context, projectID uuid.UUID) (*models.ValidationResults, error) {
	if m.resultsErr != nil {
		return nil, m.resultsErr
	}
	return m.results, nil
}
func (m *mockValidationService) CheckConsistency(ctx context.Context, projectID uuid.UUID) ([]models.SheetConsistency, error) {
	return m.report, nil
}

// mockRuleGroupService implements services.RuleGroupService for handler tests.
type mockRuleGroupService struct {
	groups    []*models.RuleGroup
	createErr error
	updateErr error
	deleteErr error
	deleted   []uuid.UUID
}

func (m *mockRuleGroupService) List(ctx context.Context, projectID uuid.UUID) ([]*models.RuleGroup, error) {
	return m.groups, nil
}
func (m *mockRuleGroupService) Create(ctx context.Context, projectID uuid.UUID, group *models.RuleGroup) error {
	return m.createErr
}
func (m *mockRuleGroupService) Update(ctx context.Context, projectID uuid.UUID, group *models.RuleGroup) error {
	return m.updateErr
}
func (m *mockRuleGroupService) Delete(ctx context.Context, projectID, groupID uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, groupID)
	return nil
}

// mockDictionaryService implements services.DictionaryService for handler tests.
type mockDictionaryService struct {
	words     []string
	addErr    error
	removeErr error
	added     []string
	removed   []string
}

func (m *mockDictionaryService) Words() ([]string, error) {
	return m.words, nil
}
func (m *mockDictionaryService) Add(word string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, word)
	return nil
}
func (m *mockDictionaryService) Remove(word string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, word)
	return nil
}
