package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProjectScope wraps a connection pinned to one project's isolated store.
// The connection has search_path set to the project's schema, so unqualified
// table names resolve to that project's files/sheets/fields/rules tables and
// its dynamically created data tables.
type ProjectScope struct {
	Conn *pgxpool.Conn

	projectID uuid.UUID
}

// ProjectID returns the project this scope is pinned to.
func (s *ProjectScope) ProjectID() uuid.UUID {
	return s.projectID
}

// Close resets the search_path and releases the connection to the pool.
// This MUST be called to prevent project scope from leaking to the next caller.
func (s *ProjectScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "SET search_path TO public")
	s.Conn.Release()
}

// SchemaName returns the Postgres schema holding a project's isolated store.
func SchemaName(projectID uuid.UUID) string {
	// uuid hex without dashes is a valid identifier suffix; 12 chars is enough
	// to avoid collisions while keeping names readable in psql.
	hex := projectID.String()
	compact := hex[0:8] + hex[9:13]
	return "project_" + compact
}

// WithProject acquires a connection and pins it to the project's schema.
// The returned ProjectScope MUST be closed with defer scope.Close().
func (db *DB) WithProject(ctx context.Context, projectID uuid.UUID) (*ProjectScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	schema := SchemaName(projectID)
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", QuoteIdentifier(schema))); err != nil {
		conn.Release()
		return nil, fmt.Errorf("set search_path for project %s: %w", projectID, err)
	}

	return &ProjectScope{Conn: conn, projectID: projectID}, nil
}

// WithoutProject acquires a connection without project scoping.
// Use this for registry store operations (project listing, creation).
// The returned ProjectScope MUST be closed with defer scope.Close().
func (db *DB) WithoutProject(ctx context.Context) (*ProjectScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &ProjectScope{Conn: conn}, nil
}
