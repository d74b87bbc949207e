package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/dqengine/pkg/database"
)

// CellValue is one cell read from a data table, keyed by its stable row id.
type CellValue struct {
	RowID int64
	Value string
}

// DataRow is one row of a data table with values aligned to the requested
// column order.
type DataRow struct {
	RowID  int64
	Values []string
}

// DataRepository manages the dynamically created per-sheet data tables.
// Tables live in the project's schema; all values are stored as TEXT and the
// row id assigned at import is the stable identifier reported in errors.
type DataRepository interface {
	// CreateSheetTable creates an empty data table with one TEXT column per
	// normalized column name, inside the caller's transaction.
	CreateSheetTable(ctx context.Context, tx pgx.Tx, table string, columns []string) error

	// AppendRows bulk-inserts rows; each row must align with columns.
	AppendRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]string) error

	// ReadColumn streams one whole column in row-id order.
	ReadColumn(ctx context.Context, table, column string) ([]CellValue, error)

	// ReadRowsBatch reads up to limit rows with row id greater than afterRowID,
	// in row-id order. An empty result means the table is exhausted.
	ReadRowsBatch(ctx context.Context, table string, columns []string, afterRowID int64, limit int) ([]DataRow, error)

	CountRows(ctx context.Context, table string) (int64, error)
	DropSheetTable(ctx context.Context, table string) error
}

type dataRepository struct{}

// NewDataRepository creates a new data table repository.
func NewDataRepository() DataRepository {
	return &dataRepository{}
}

func (r *dataRepository) CreateSheetTable(ctx context.Context, tx pgx.Tx, table string, columns []string) error {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, database.QuoteIdentifier(database.RowIDColumn)+" BIGSERIAL PRIMARY KEY")
	for _, col := range columns {
		defs = append(defs, database.QuoteIdentifier(col)+" TEXT")
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)",
		database.QuoteIdentifier(table), strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create data table %s: %w", table, err)
	}
	return nil
}

func (r *dataRepository) AppendRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	source := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		row := rows[i]
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		return values, nil
	})

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, source)
	if err != nil {
		return fmt.Errorf("failed to copy rows into %s: %w", table, err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copied %d of %d rows into %s", copied, len(rows), table)
	}
	return nil
}

func (r *dataRepository) ReadColumn(ctx context.Context, table, column string) ([]CellValue, error) {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no project scope in context")
	}

	query := fmt.Sprintf("SELECT %s, COALESCE(%s, '') FROM %s ORDER BY %s",
		database.QuoteIdentifier(database.RowIDColumn),
		database.QuoteIdentifier(column),
		database.QuoteIdentifier(table),
		database.QuoteIdentifier(database.RowIDColumn))

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read column %s of %s: %w", column, table, err)
	}
	defer rows.Close()

	var cells []CellValue
	for rows.Next() {
		var c CellValue
		if err := rows.Scan(&c.RowID, &c.Value); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func (r *dataRepository) ReadRowsBatch(ctx context.Context, table string, columns []string, afterRowID int64, limit int) ([]DataRow, error) {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no project scope in context")
	}

	selects := make([]string, 0, len(columns)+1)
	selects = append(selects, database.QuoteIdentifier(database.RowIDColumn))
	for _, col := range columns {
		selects = append(selects, fmt.Sprintf("COALESCE(%s, '')", database.QuoteIdentifier(col)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1 ORDER BY %s LIMIT $2",
		strings.Join(selects, ", "),
		database.QuoteIdentifier(table),
		database.QuoteIdentifier(database.RowIDColumn),
		database.QuoteIdentifier(database.RowIDColumn))

	rows, err := scope.Conn.Query(ctx, query, afterRowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch from %s: %w", table, err)
	}
	defer rows.Close()

	var batch []DataRow
	for rows.Next() {
		row := DataRow{Values: make([]string, len(columns))}
		dest := make([]any, 0, len(columns)+1)
		dest = append(dest, &row.RowID)
		for i := range row.Values {
			dest = append(dest, &row.Values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan data row: %w", err)
		}
		batch = append(batch, row)
	}
	return batch, rows.Err()
}

func (r *dataRepository) CountRows(ctx context.Context, table string) (int64, error) {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no project scope in context")
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", database.QuoteIdentifier(table))
	if err := scope.Conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return count, nil
}

func (r *dataRepository) DropSheetTable(ctx context.Context, table string) error {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return fmt.Errorf("no project scope in context")
	}

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", database.QuoteIdentifier(table))
	if _, err := scope.Conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to drop data table %s: %w", table, err)
	}
	return nil
}

// Ensure dataRepository implements DataRepository at compile time.
var _ DataRepository = (*dataRepository)(nil)
