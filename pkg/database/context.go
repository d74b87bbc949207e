package database

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// ProjectScopeKey is the context key for storing the project-scoped database connection.
	ProjectScopeKey contextKey = "projectScope"
)

// GetProjectScope retrieves the project-scoped database connection from context.
// Returns nil and false if not present.
func GetProjectScope(ctx context.Context) (*ProjectScope, bool) {
	scope, ok := ctx.Value(ProjectScopeKey).(*ProjectScope)
	return scope, ok
}

// SetProjectScope stores the project-scoped database connection in context.
func SetProjectScope(ctx context.Context, scope *ProjectScope) context.Context {
	return context.WithValue(ctx, ProjectScopeKey, scope)
}

// ProjectContextFunc acquires a project-scoped database connection.
// Returns the scoped context, a cleanup function (MUST be called), and any error.
type ProjectContextFunc func(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error)

// NewProjectContextFunc creates a ProjectContextFunc that uses the given database.
func NewProjectContextFunc(db *DB) ProjectContextFunc {
	return func(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error) {
		scope, err := db.WithProject(ctx, projectID)
		if err != nil {
			return nil, nil, err
		}
		projectCtx := SetProjectScope(ctx, scope)
		return projectCtx, func() { scope.Close() }, nil
	}
}
