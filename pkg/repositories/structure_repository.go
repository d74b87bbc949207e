package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/jsonutil"
	"github.com/ekaya-inc/dqengine/pkg/models"
)

// StructureRepository maintains the File/Sheet/Field/Rule hierarchy inside a
// project's store. All methods read the project scope from the context.
type StructureRepository interface {
	// GetStructure rebuilds the full tree in deterministic order: files by
	// upload time, sheets by workbook position, fields by name, rules by
	// their declared order.
	GetStructure(ctx context.Context) ([]*models.File, error)

	// UpsertStructure reconciles the store against a full snapshot: every
	// entity in the snapshot is upserted by id, everything absent from it is
	// deleted. Re-submitting the same snapshot is a no-op.
	UpsertStructure(ctx context.Context, files []*models.File) error

	// SaveImportedFile persists one freshly imported file with its sheets and
	// fields inside the caller's transaction.
	SaveImportedFile(ctx context.Context, tx pgx.Tx, file *models.File) error

	// DeleteFile removes a file row; sheets, fields and rules cascade.
	DeleteFile(ctx context.Context, id uuid.UUID) error
}

type structureRepository struct{}

// NewStructureRepository creates a new structure repository.
func NewStructureRepository() StructureRepository {
	return &structureRepository{}
}

func (r *structureRepository) GetStructure(ctx context.Context) ([]*models.File, error) {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no project scope in context")
	}

	files, fileIndex, err := r.loadFiles(ctx, scope)
	if err != nil {
		return nil, err
	}
	sheetIndex, err := r.loadSheets(ctx, scope, fileIndex)
	if err != nil {
		return nil, err
	}
	fieldIndex, err := r.loadFields(ctx, scope, sheetIndex)
	if err != nil {
		return nil, err
	}
	if err := r.loadRules(ctx, scope, fieldIndex); err != nil {
		return nil, err
	}

	for _, sheet := range sheetIndex {
		models.SortFields(sheet.Fields)
	}
	for _, field := range fieldIndex {
		models.SortRules(field.Rules)
	}

	return files, nil
}

func (r *structureRepository) loadFiles(ctx context.Context, scope *database.ProjectScope) ([]*models.File, map[uuid.UUID]*models.File, error) {
	rows, err := scope.Conn.Query(ctx, `
		SELECT id, name, saved_name, uploaded_at
		FROM files
		ORDER BY uploaded_at, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load files: %w", err)
	}
	defer rows.Close()

	var files []*models.File
	index := make(map[uuid.UUID]*models.File)
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.ID, &f.Name, &f.SavedName, &f.UploadedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, &f)
		index[f.ID] = &f
	}
	return files, index, rows.Err()
}

func (r *structureRepository) loadSheets(ctx context.Context, scope *database.ProjectScope, files map[uuid.UUID]*models.File) (map[uuid.UUID]*models.Sheet, error) {
	rows, err := scope.Conn.Query(ctx, `
		SELECT id, file_id, name, COALESCE(data_table_name, ''), row_count, is_active
		FROM sheets
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load sheets: %w", err)
	}
	defer rows.Close()

	index := make(map[uuid.UUID]*models.Sheet)
	for rows.Next() {
		var s models.Sheet
		var fileID uuid.UUID
		if err := rows.Scan(&s.ID, &fileID, &s.Name, &s.DataTableName, &s.RowCount, &s.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		if parent, ok := files[fileID]; ok {
			parent.Sheets = append(parent.Sheets, &s)
			index[s.ID] = &s
		}
	}
	return index, rows.Err()
}

func (r *structureRepository) loadFields(ctx context.Context, scope *database.ProjectScope, sheets map[uuid.UUID]*models.Sheet) (map[uuid.UUID]*models.Field, error) {
	rows, err := scope.Conn.Query(ctx, `
		SELECT id, sheet_id, name, column_name, is_required
		FROM fields`)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}
	defer rows.Close()

	index := make(map[uuid.UUID]*models.Field)
	for rows.Next() {
		var f models.Field
		var sheetID uuid.UUID
		if err := rows.Scan(&f.ID, &sheetID, &f.Name, &f.ColumnName, &f.IsRequired); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		if parent, ok := sheets[sheetID]; ok {
			parent.Fields = append(parent.Fields, &f)
			index[f.ID] = &f
		}
	}
	return index, rows.Err()
}

func (r *structureRepository) loadRules(ctx context.Context, scope *database.ProjectScope, fields map[uuid.UUID]*models.Field) error {
	rows, err := scope.Conn.Query(ctx, `
		SELECT id, field_id, COALESCE(rule_type, ''), group_id, params, order_num
		FROM rules`)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule models.Rule
		var fieldID uuid.UUID
		var params []byte
		if err := rows.Scan(&rule.ID, &fieldID, &rule.Type, &rule.GroupID, &params, &rule.Order); err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.Params, err = jsonutil.FlexibleStringMap(params)
		if err != nil {
			return fmt.Errorf("failed to decode rule params: %w", err)
		}
		if parent, ok := fields[fieldID]; ok {
			parent.Rules = append(parent.Rules, &rule)
		}
	}
	return rows.Err()
}

func (r *structureRepository) UpsertStructure(ctx context.Context, files []*models.File) error {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return fmt.Errorf("no project scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	fileIDs := make([]uuid.UUID, 0, len(files))
	var sheetIDs, fieldIDs, ruleIDs []uuid.UUID

	for _, file := range files {
		if file.ID == uuid.Nil {
			file.ID = uuid.New()
		}
		fileIDs = append(fileIDs, file.ID)
		if err := upsertFile(ctx, tx, file); err != nil {
			return err
		}

		for pos, sheet := range file.Sheets {
			if sheet.ID == uuid.Nil {
				sheet.ID = uuid.New()
			}
			sheetIDs = append(sheetIDs, sheet.ID)
			if err := upsertSheet(ctx, tx, file.ID, sheet, pos); err != nil {
				return err
			}

			for _, field := range sheet.Fields {
				if field.ID == uuid.Nil {
					field.ID = uuid.New()
				}
				fieldIDs = append(fieldIDs, field.ID)
				if err := upsertField(ctx, tx, sheet.ID, field); err != nil {
					return err
				}

				for _, rule := range field.Rules {
					if rule.ID == uuid.Nil {
						rule.ID = uuid.New()
					}
					ruleIDs = append(ruleIDs, rule.ID)
					if err := upsertRule(ctx, tx, field.ID, rule); err != nil {
						return err
					}
				}
			}
		}
	}

	// Prune everything absent from the snapshot, leaves first so foreign
	// keys never block the delete.
	prunes := []struct {
		query string
		keep  []uuid.UUID
	}{
		{`DELETE FROM rules WHERE NOT (id = ANY($1))`, ruleIDs},
		{`DELETE FROM fields WHERE NOT (id = ANY($1))`, fieldIDs},
		{`DELETE FROM sheets WHERE NOT (id = ANY($1))`, sheetIDs},
		{`DELETE FROM files WHERE NOT (id = ANY($1))`, fileIDs},
	}
	for _, p := range prunes {
		keep := p.keep
		if keep == nil {
			keep = []uuid.UUID{}
		}
		if _, err := tx.Exec(ctx, p.query, keep); err != nil {
			return fmt.Errorf("failed to prune structure: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit structure: %w", err)
	}
	return nil
}

func (r *structureRepository) SaveImportedFile(ctx context.Context, tx pgx.Tx, file *models.File) error {
	if err := upsertFile(ctx, tx, file); err != nil {
		return err
	}
	for pos, sheet := range file.Sheets {
		if err := upsertSheet(ctx, tx, file.ID, sheet, pos); err != nil {
			return err
		}
		for _, field := range sheet.Fields {
			if err := upsertField(ctx, tx, sheet.ID, field); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *structureRepository) DeleteFile(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return fmt.Errorf("no project scope in context")
	}
	if _, err := scope.Conn.Exec(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func upsertFile(ctx context.Context, tx pgx.Tx, file *models.File) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO files (id, name, saved_name, uploaded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, saved_name = EXCLUDED.saved_name`,
		file.ID, file.Name, file.SavedName, file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", file.Name, err)
	}
	return nil
}

func upsertSheet(ctx context.Context, tx pgx.Tx, fileID uuid.UUID, sheet *models.Sheet, position int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sheets (id, file_id, name, data_table_name, row_count, is_active, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    data_table_name = EXCLUDED.data_table_name,
		    row_count = EXCLUDED.row_count,
		    is_active = EXCLUDED.is_active,
		    position = EXCLUDED.position`,
		sheet.ID, fileID, sheet.Name, sheet.DataTableName, sheet.RowCount, sheet.IsActive, position)
	if err != nil {
		return fmt.Errorf("failed to upsert sheet %s: %w", sheet.Name, err)
	}
	return nil
}

func upsertField(ctx context.Context, tx pgx.Tx, sheetID uuid.UUID, field *models.Field) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO fields (id, sheet_id, name, column_name, is_required)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    column_name = EXCLUDED.column_name,
		    is_required = EXCLUDED.is_required`,
		field.ID, sheetID, field.Name, field.ColumnName, field.IsRequired)
	if err != nil {
		return fmt.Errorf("failed to upsert field %s: %w", field.Name, err)
	}
	return nil
}

func upsertRule(ctx context.Context, tx pgx.Tx, fieldID uuid.UUID, rule *models.Rule) error {
	params, err := json.Marshal(rule.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal rule params: %w", err)
	}

	var ruleType any
	if rule.Type != "" {
		ruleType = rule.Type
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rules (id, field_id, rule_type, group_id, params, order_num)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET rule_type = EXCLUDED.rule_type,
		    group_id = EXCLUDED.group_id,
		    params = EXCLUDED.params,
		    order_num = EXCLUDED.order_num`,
		rule.ID, fieldID, ruleType, rule.GroupID, params, rule.Order)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rule.ID, err)
	}
	return nil
}

// Ensure structureRepository implements StructureRepository at compile time.
var _ StructureRepository = (*structureRepository)(nil)
