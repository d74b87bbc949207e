package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/repositories"
	"github.com/ekaya-inc/dqengine/pkg/rules"
)

// ValidationStarter launches a validation run. Satisfied by
// ValidationService; split out so the project service can trigger
// auto-revalidation without depending on the whole orchestrator.
type ValidationStarter interface {
	Start(ctx context.Context, projectID uuid.UUID) (models.ValidationStatus, error)
}

// ProjectService manages the project lifecycle: registry metadata, the
// isolated per-project store, and the schema hierarchy inside it.
type ProjectService interface {
	// Create registers a project and provisions its isolated store.
	Create(ctx context.Context, name, description string, autoRevalidate bool) (*models.Project, error)

	// List returns every project's registry metadata, most recent first.
	List(ctx context.Context) ([]models.ProjectInfo, error)

	// Get returns a project with its full File/Sheet/Field/Rule tree.
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)

	// UpdateMeta changes name, description and the auto-revalidate flag.
	UpdateMeta(ctx context.Context, project *models.Project) error

	// Delete removes the registry row, drops the project's store schema with
	// everything in it, and deletes archived workbooks. Rejected while a
	// validation is running.
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateStructure replaces the project's schema hierarchy with the given
	// snapshot after validating every rule against the registry. On projects
	// with auto-revalidate a successful update triggers a validation run.
	UpdateStructure(ctx context.Context, projectID uuid.UUID, files []*models.File) error

	// DeleteFile removes one uploaded file, its structure rows and its data
	// tables.
	DeleteFile(ctx context.Context, projectID, fileID uuid.UUID) error
}

type projectService struct {
	db            *database.DB
	projectCtx    database.ProjectContextFunc
	projectRepo   repositories.ProjectRepository
	structureRepo repositories.StructureRepository
	groupRepo     repositories.RuleGroupRepository
	dataRepo      repositories.DataRepository
	registry      *rules.Registry
	tracker       *StatusTracker
	validator     ValidationStarter
	archiveDir    string
	logger        *zap.Logger
}

// NewProjectService creates a new project service.
func NewProjectService(
	db *database.DB,
	projectCtx database.ProjectContextFunc,
	projectRepo repositories.ProjectRepository,
	structureRepo repositories.StructureRepository,
	groupRepo repositories.RuleGroupRepository,
	dataRepo repositories.DataRepository,
	registry *rules.Registry,
	tracker *StatusTracker,
	validator ValidationStarter,
	archiveDir string,
	logger *zap.Logger,
) ProjectService {
	return &projectService{
		db:            db,
		projectCtx:    projectCtx,
		projectRepo:   projectRepo,
		structureRepo: structureRepo,
		groupRepo:     groupRepo,
		dataRepo:      dataRepo,
		registry:      registry,
		tracker:       tracker,
		validator:     validator,
		archiveDir:    archiveDir,
		logger:        logger.Named("project_service"),
	}
}

func (s *projectService) Create(ctx context.Context, name, description string, autoRevalidate bool) (*models.Project, error) {
	project := &models.Project{
		Name:           name,
		Description:    description,
		AutoRevalidate: autoRevalidate,
	}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, err
	}

	if err := s.db.CreateProjectStore(ctx, project.ID); err != nil {
		// Roll the registry row back so a failed provisioning leaves nothing.
		if delErr := s.projectRepo.Delete(ctx, project.ID); delErr != nil {
			s.logger.Error("Failed to clean up registry row after store provisioning failure",
				zap.String("project_id", project.ID.String()),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("provision project store: %w", err)
	}

	s.logger.Info("Created project",
		zap.String("project_id", project.ID.String()),
		zap.String("name", name))
	return project, nil
}

func (s *projectService) List(ctx context.Context) ([]models.ProjectInfo, error) {
	return s.projectRepo.List(ctx)
}

func (s *projectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	project, err := s.projectRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	scopedCtx, done, err := s.projectCtx(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scope project %s: %w", id, err)
	}
	defer done()

	project.Files, err = s.structureRepo.GetStructure(scopedCtx)
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *projectService) UpdateMeta(ctx context.Context, project *models.Project) error {
	return s.projectRepo.UpdateMeta(ctx, project)
}

func (s *projectService) Delete(ctx context.Context, id uuid.UUID) error {
	if s.tracker.Get(id).IsRunning {
		return apperrors.ErrValidationRunning
	}

	if _, err := s.projectRepo.Get(ctx, id); err != nil {
		return err
	}

	if err := s.db.DropProjectStore(ctx, id); err != nil {
		return err
	}
	if err := s.projectRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.tracker.Clear(id)

	// Archived workbooks are best effort: the store is gone either way.
	archivePath := filepath.Join(s.archiveDir, id.String())
	if err := os.RemoveAll(archivePath); err != nil {
		s.logger.Warn("Failed to remove archived workbooks",
			zap.String("path", archivePath),
			zap.Error(err))
	}

	s.logger.Info("Deleted project", zap.String("project_id", id.String()))
	return nil
}

func (s *projectService) UpdateStructure(ctx context.Context, projectID uuid.UUID, files []*models.File) error {
	project, err := s.projectRepo.Get(ctx, projectID)
	if err != nil {
		return err
	}

	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()

	if err := s.validateStructure(scopedCtx, files); err != nil {
		return err
	}
	if err := s.structureRepo.UpsertStructure(scopedCtx, files); err != nil {
		return err
	}
	if err := s.projectRepo.Touch(ctx, projectID); err != nil {
		return err
	}

	if project.AutoRevalidate {
		if _, err := s.validator.Start(ctx, projectID); err != nil {
			// A rejected start is not a structure-update failure.
			s.logger.Warn("Auto-revalidation not started",
				zap.String("project_id", projectID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// validateStructure rejects snapshots with malformed rules before anything is
// written: the XOR invariant, unknown rule types and dangling group ids.
func (s *projectService) validateStructure(scopedCtx context.Context, files []*models.File) error {
	groups, err := s.groupRepo.List(scopedCtx)
	if err != nil {
		return err
	}
	knownGroups := make(map[uuid.UUID]bool, len(groups))
	for _, g := range groups {
		knownGroups[g.ID] = true
	}

	for _, file := range files {
		for _, sheet := range file.Sheets {
			for _, field := range sheet.Fields {
				for _, rule := range field.Rules {
					if err := rule.Validate(); err != nil {
						return fmt.Errorf("field %q: %w", field.Name, err)
					}
					if rule.IsGroup() {
						if !knownGroups[*rule.GroupID] {
							return fmt.Errorf("field %q references unknown rule group %s: %w",
								field.Name, *rule.GroupID, apperrors.ErrNotFound)
						}
						continue
					}
					if _, ok := s.registry.Get(rule.Type); !ok {
						return fmt.Errorf("field %q uses rule type %q: %w",
							field.Name, rule.Type, apperrors.ErrUnknownRuleType)
					}
				}
			}
		}
	}
	return nil
}

func (s *projectService) DeleteFile(ctx context.Context, projectID, fileID uuid.UUID) error {
	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()

	files, err := s.structureRepo.GetStructure(scopedCtx)
	if err != nil {
		return err
	}

	var target *models.File
	for _, f := range files {
		if f.ID == fileID {
			target = f
			break
		}
	}
	if target == nil {
		return apperrors.ErrNotFound
	}

	for _, sheet := range target.Sheets {
		if sheet.DataTableName == "" {
			continue
		}
		if err := s.dataRepo.DropSheetTable(scopedCtx, sheet.DataTableName); err != nil {
			return err
		}
	}
	if err := s.structureRepo.DeleteFile(scopedCtx, fileID); err != nil {
		return err
	}
	return s.projectRepo.Touch(ctx, projectID)
}

// Ensure projectService implements ProjectService at compile time.
var _ ProjectService = (*projectService)(nil)
