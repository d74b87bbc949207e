package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
)

// ProjectRepository defines access to the shared registry store. Unlike the
// per-project repositories it talks to the public schema directly, so it
// holds the pool instead of reading a scope from the context.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context) ([]models.ProjectInfo, error)
	UpdateMeta(ctx context.Context, project *models.Project) error
	Touch(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type projectRepository struct {
	db *database.DB
}

// NewProjectRepository creates a new registry-store project repository.
func NewProjectRepository(db *database.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// Create inserts a new project or updates if it already exists (idempotent).
// Uses ON CONFLICT for safe retry behavior during provisioning.
func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	query := `
		INSERT INTO projects (id, name, description, auto_revalidate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    auto_revalidate = EXCLUDED.auto_revalidate,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.AutoRevalidate,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves a project's registry metadata by ID. The schema hierarchy is
// loaded separately from the project's own store.
func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT id, name, description, auto_revalidate, created_at, updated_at
		FROM projects
		WHERE id = $1`

	var project models.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&project.AutoRevalidate,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// List returns registry metadata for every project, most recently updated
// first, with the on-disk size of each project's store.
func (r *projectRepository) List(ctx context.Context) ([]models.ProjectInfo, error) {
	query := `
		SELECT p.id, p.name, p.description, p.updated_at,
		       COALESCE((
		           SELECT SUM(pg_total_relation_size(c.oid))
		           FROM pg_class c
		           JOIN pg_namespace n ON n.oid = c.relnamespace
		           WHERE n.nspname = 'project_' || substr(replace(p.id::text, '-', ''), 1, 12)
		             AND c.relkind = 'r'
		       ), 0) AS store_bytes
		FROM projects p
		ORDER BY p.updated_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var infos []models.ProjectInfo
	for rows.Next() {
		var info models.ProjectInfo
		var storeBytes int64
		if err := rows.Scan(&info.ID, &info.Name, &info.Description, &info.UpdatedAt, &storeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		info.SizeKB = float64(storeBytes) / 1024.0
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}

	return infos, nil
}

// UpdateMeta updates a project's name, description and auto-revalidate flag.
func (r *projectRepository) UpdateMeta(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()

	query := `
		UPDATE projects
		SET name = $2, description = $3, auto_revalidate = $4, updated_at = $5
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		project.ID, project.Name, project.Description, project.AutoRevalidate, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Touch bumps updated_at. Called after imports and structure changes so the
// listing order reflects actual activity.
func (r *projectRepository) Touch(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE projects SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete removes a project's registry row. The project's store schema is
// dropped separately by the service.
func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)
