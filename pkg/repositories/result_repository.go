package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
)

// StoredResult is one persisted validation run: its header plus every error
// row. Report summaries are recomputed from the errors on read, so the stored
// shape never drifts from the report logic.
type StoredResult struct {
	TotalRows         int
	RequiredErrorRows int
	ValidatedAt       time.Time
	Errors            []models.ValidationError
}

// ResultRepository persists validation runs in a project's store.
type ResultRepository interface {
	// SaveResults writes the run header and all errors in one transaction.
	SaveResults(ctx context.Context, result *StoredResult) error

	// GetLatest returns the most recent run, or ErrNotFound when the project
	// has never been validated.
	GetLatest(ctx context.Context) (*StoredResult, error)
}

type resultRepository struct{}

// NewResultRepository creates a new validation result repository.
func NewResultRepository() ResultRepository {
	return &resultRepository{}
}

func (r *resultRepository) SaveResults(ctx context.Context, result *StoredResult) error {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return fmt.Errorf("no project scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if result.ValidatedAt.IsZero() {
		result.ValidatedAt = time.Now()
	}

	var resultID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO validation_results (validated_at, total_rows, required_error_rows)
		VALUES ($1, $2, $3)
		RETURNING id`,
		result.ValidatedAt, result.TotalRows, result.RequiredErrorRows).Scan(&resultID)
	if err != nil {
		return fmt.Errorf("failed to insert validation result: %w", err)
	}

	for i := range result.Errors {
		e := &result.Errors[i]
		var details []byte
		if len(e.Details) > 0 {
			if details, err = json.Marshal(e.Details); err != nil {
				return fmt.Errorf("failed to marshal error details: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO validation_errors
				(result_id, file_name, sheet_name, field_name, row_id, rule_name, value, details, is_required)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			resultID, e.FileName, e.SheetName, e.FieldName, e.Row, e.RuleName, e.Value, details, e.IsRequired)
		if err != nil {
			return fmt.Errorf("failed to insert validation error: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit validation result: %w", err)
	}
	return nil
}

func (r *resultRepository) GetLatest(ctx context.Context) (*StoredResult, error) {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no project scope in context")
	}

	var resultID int64
	var result StoredResult
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, validated_at, total_rows, required_error_rows
		FROM validation_results
		ORDER BY validated_at DESC, id DESC
		LIMIT 1`).Scan(&resultID, &result.ValidatedAt, &result.TotalRows, &result.RequiredErrorRows)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest validation result: %w", err)
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT file_name, sheet_name, field_name, row_id, rule_name, COALESCE(value, ''), details, is_required
		FROM validation_errors
		WHERE result_id = $1
		ORDER BY id`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to get validation errors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.ValidationError
		var details []byte
		if err := rows.Scan(&e.FileName, &e.SheetName, &e.FieldName, &e.Row, &e.RuleName, &e.Value, &details, &e.IsRequired); err != nil {
			return nil, fmt.Errorf("failed to scan validation error: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode error details: %w", err)
			}
		}
		result.Errors = append(result.Errors, e)
	}
	return &result, rows.Err()
}

// Ensure resultRepository implements ResultRepository at compile time.
var _ ResultRepository = (*resultRepository)(nil)
