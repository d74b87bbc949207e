package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// projectStoreDDL creates the structural tables of a per-project store.
// Executed inside the project's schema, so names are unqualified. Data tables
// are not created here - the import pipeline creates one per sheet.
var projectStoreDDL = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		saved_name TEXT NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sheets (
		id UUID PRIMARY KEY,
		file_id UUID NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		data_table_name TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS fields (
		id UUID PRIMARY KEY,
		sheet_id UUID NOT NULL REFERENCES sheets(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		is_required BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS rules (
		id UUID PRIMARY KEY,
		field_id UUID NOT NULL REFERENCES fields(id) ON DELETE CASCADE,
		rule_type TEXT,
		group_id UUID,
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		order_num INTEGER NOT NULL DEFAULT 1,
		CHECK ((rule_type IS NULL) <> (group_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS rule_groups (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		logic TEXT NOT NULL CHECK (logic IN ('AND', 'OR'))
	)`,
	`CREATE TABLE IF NOT EXISTS rule_group_members (
		group_id UUID NOT NULL REFERENCES rule_groups(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		rule_type TEXT NOT NULL,
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		PRIMARY KEY (group_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS validation_results (
		id BIGSERIAL PRIMARY KEY,
		validated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		total_rows INTEGER NOT NULL DEFAULT 0,
		required_error_rows INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS validation_errors (
		id BIGSERIAL PRIMARY KEY,
		result_id BIGINT NOT NULL REFERENCES validation_results(id) ON DELETE CASCADE,
		file_name TEXT NOT NULL,
		sheet_name TEXT NOT NULL,
		field_name TEXT NOT NULL,
		row_id BIGINT NOT NULL,
		rule_name TEXT NOT NULL,
		value TEXT,
		details JSONB,
		is_required BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sheets_file_id ON sheets(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_fields_sheet_id ON fields(sheet_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_field_id ON rules(field_id)`,
	`CREATE INDEX IF NOT EXISTS idx_validation_errors_result_id ON validation_errors(result_id)`,
}

// CreateProjectStore creates the isolated schema for a project and its
// structural tables. Idempotent.
func (db *DB) CreateProjectStore(ctx context.Context, projectID uuid.UUID) error {
	schema := QuoteIdentifier(SchemaName(projectID))

	if _, err := db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema for project %s: %w", projectID, err)
	}

	scope, err := db.WithProject(ctx, projectID)
	if err != nil {
		return err
	}
	defer scope.Close()

	for _, ddl := range projectStoreDDL {
		if _, err := scope.Conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create project store tables for %s: %w", projectID, err)
		}
	}
	return nil
}

// DropProjectStore removes a project's schema and everything in it, including
// all dynamically created data tables.
func (db *DB) DropProjectStore(ctx context.Context, projectID uuid.UUID) error {
	schema := QuoteIdentifier(SchemaName(projectID))
	if _, err := db.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		return fmt.Errorf("drop schema for project %s: %w", projectID, err)
	}
	return nil
}
