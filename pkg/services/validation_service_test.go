package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/config"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/repositories"
	"github.com/ekaya-inc/dqengine/pkg/rules"
)

// passthroughProjectCtx skips real connection scoping; the fakes below keep
// everything in memory.
func passthroughProjectCtx(ctx context.Context, projectID uuid.UUID) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

type fakeProjectRepo struct {
	repositories.ProjectRepository
	projects map[uuid.UUID]*models.Project
}

func (f *fakeProjectRepo) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (f *fakeProjectRepo) Touch(ctx context.Context, id uuid.UUID) error { return nil }

type fakeStructureRepo struct {
	repositories.StructureRepository
	files []*models.File
	err   error
}

func (f *fakeStructureRepo) GetStructure(ctx context.Context) ([]*models.File, error) {
	return f.files, f.err
}

type fakeGroupRepo struct {
	repositories.RuleGroupRepository
	groups []*models.RuleGroup
}

func (f *fakeGroupRepo) List(ctx context.Context) ([]*models.RuleGroup, error) {
	return f.groups, nil
}

// fakeDataRepo serves sheet data from memory: table -> column -> values in
// row order. Row ids are 1-based positions, mirroring the BIGSERIAL key.
type fakeDataRepo struct {
	tables  map[string]map[string][]string
	dropped []string
}

func (f *fakeDataRepo) CreateSheetTable(ctx context.Context, tx pgx.Tx, table string, columns []string) error {
	return nil
}

func (f *fakeDataRepo) AppendRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]string) error {
	return nil
}

func (f *fakeDataRepo) ReadColumn(ctx context.Context, table, column string) ([]repositories.CellValue, error) {
	cols, ok := f.tables[table]
	if !ok {
		return nil, fmt.Errorf("no such table %s", table)
	}
	values := cols[column]
	cells := make([]repositories.CellValue, len(values))
	for i, v := range values {
		cells[i] = repositories.CellValue{RowID: int64(i + 1), Value: v}
	}
	return cells, nil
}

func (f *fakeDataRepo) ReadRowsBatch(ctx context.Context, table string, columns []string, afterRowID int64, limit int) ([]repositories.DataRow, error) {
	cols, ok := f.tables[table]
	if !ok {
		return nil, fmt.Errorf("no such table %s", table)
	}
	total := f.rowCount(table)

	var batch []repositories.DataRow
	for rowID := afterRowID + 1; rowID <= total && len(batch) < limit; rowID++ {
		row := repositories.DataRow{RowID: rowID, Values: make([]string, len(columns))}
		for i, col := range columns {
			if values := cols[col]; int(rowID) <= len(values) {
				row.Values[i] = values[rowID-1]
			}
		}
		batch = append(batch, row)
	}
	return batch, nil
}

func (f *fakeDataRepo) CountRows(ctx context.Context, table string) (int64, error) {
	if _, ok := f.tables[table]; !ok {
		return 0, fmt.Errorf("no such table %s", table)
	}
	return f.rowCount(table), nil
}

func (f *fakeDataRepo) DropSheetTable(ctx context.Context, table string) error {
	f.dropped = append(f.dropped, table)
	delete(f.tables, table)
	return nil
}

func (f *fakeDataRepo) rowCount(table string) int64 {
	for _, values := range f.tables[table] {
		return int64(len(values))
	}
	return 0
}

type fakeResultRepo struct {
	saved   *repositories.StoredResult
	saveErr error
}

func (f *fakeResultRepo) SaveResults(ctx context.Context, result *repositories.StoredResult) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = result
	return nil
}

func (f *fakeResultRepo) GetLatest(ctx context.Context) (*repositories.StoredResult, error) {
	if f.saved == nil {
		return nil, apperrors.ErrNotFound
	}
	return f.saved, nil
}

// validationFixture wires a ValidationService over in-memory fakes.
type validationFixture struct {
	projectID uuid.UUID
	svc       ValidationService
	tracker   *StatusTracker
	results   *fakeResultRepo
	data      *fakeDataRepo
}

func newValidationFixture(t *testing.T, files []*models.File, groups []*models.RuleGroup, tables map[string]map[string][]string) *validationFixture {
	t.Helper()
	projectID := uuid.New()
	tracker := NewStatusTracker()
	results := &fakeResultRepo{}
	data := &fakeDataRepo{tables: tables}

	registry := rules.NewRegistry(zap.NewNop(), rules.Builtins(zap.NewNop(), "no_dictionary.txt")...)
	svc := NewValidationService(
		database.ProjectContextFunc(passthroughProjectCtx),
		&fakeProjectRepo{projects: map[uuid.UUID]*models.Project{projectID: {ID: projectID, Name: "test"}}},
		&fakeStructureRepo{files: files},
		&fakeGroupRepo{groups: groups},
		data,
		results,
		registry,
		tracker,
		config.ValidationConfig{BatchSize: 2, NominalWorkload: 100},
		zap.NewNop(),
	)
	return &validationFixture{projectID: projectID, svc: svc, tracker: tracker, results: results, data: data}
}

// runToCompletion starts a validation and waits for the terminal status.
func (fx *validationFixture) runToCompletion(t *testing.T) models.ValidationStatus {
	t.Helper()
	if _, err := fx.svc.Start(context.Background(), fx.projectID); err != nil {
		t.Fatalf("failed to start validation: %v", err)
	}
	require.Eventually(t, func() bool {
		return !fx.svc.Status(fx.projectID).IsRunning
	}, 5*time.Second, 10*time.Millisecond, "validation never finished")
	return fx.svc.Status(fx.projectID)
}

func catalogStructure(required bool) []*models.File {
	return []*models.File{{
		ID:   uuid.New(),
		Name: "catalog.xlsx",
		Sheets: []*models.Sheet{{
			ID:            uuid.New(),
			Name:          "Products",
			DataTableName: "data_products_aabbccdd",
			RowCount:      3,
			IsActive:      true,
			Fields: []*models.Field{
				{
					ID: uuid.New(), Name: "Name", ColumnName: "name", IsRequired: required,
					Rules: []*models.Rule{{ID: uuid.New(), Type: "not_empty", Order: 1}},
				},
				{
					ID: uuid.New(), Name: "Price", ColumnName: "price",
					Rules: []*models.Rule{{ID: uuid.New(), Type: "is_number", Order: 1}},
				},
			},
		}},
	}}
}

func catalogData() map[string]map[string][]string {
	return map[string]map[string][]string{
		"data_products_aabbccdd": {
			"name":  {"Widget", "", "Gizmo"},
			"price": {"10.50", "abc", ""},
		},
	}
}

func TestValidationService_ProgressIsMonotonic(t *testing.T) {
	fx := newValidationFixture(t, catalogStructure(true), nil, catalogData())

	_, err := fx.svc.Start(context.Background(), fx.projectID)
	require.NoError(t, err)

	var samples []models.ValidationStatus
	require.Eventually(t, func() bool {
		st := fx.svc.Status(fx.projectID)
		samples = append(samples, st)
		return !st.IsRunning
	}, 5*time.Second, time.Millisecond, "validation never finished")

	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].ProcessedOps, samples[i-1].ProcessedOps,
			"processed count went backwards between polls")
	}
	for _, st := range samples[:len(samples)-1] {
		assert.LessOrEqual(t, st.Percentage, float64(99),
			"live percentage must stay below 100 until the terminal update")
	}

	terminal := samples[len(samples)-1]
	assert.Equal(t, 6, terminal.TotalOps)
	assert.Equal(t, terminal.TotalOps, terminal.ProcessedOps)
	assert.Equal(t, float64(100), terminal.Percentage)
}

func TestValidationService_RunCollectsErrors(t *testing.T) {
	fx := newValidationFixture(t, catalogStructure(true), nil, catalogData())
	status := fx.runToCompletion(t)

	assert.Equal(t, float64(100), status.Percentage)
	assert.Contains(t, status.Message, "completed")

	saved := fx.results.saved
	require.NotNil(t, saved, "results must be persisted")
	assert.Equal(t, 3, saved.TotalRows)

	// Empty Name on row 2 and non-numeric Price on row 2.
	require.Len(t, saved.Errors, 2)
	byField := map[string]models.ValidationError{}
	for _, e := range saved.Errors {
		byField[e.FieldName] = e
	}
	nameErr := byField["Name"]
	assert.Equal(t, int64(2), nameErr.Row)
	assert.Equal(t, "Must not be empty", nameErr.RuleName)
	assert.True(t, nameErr.IsRequired)

	priceErr := byField["Price"]
	assert.Equal(t, int64(2), priceErr.Row)
	assert.Equal(t, "abc", priceErr.Value)

	// One distinct row failed a required field.
	assert.Equal(t, 1, saved.RequiredErrorRows)
}

func TestValidationService_StartRejectsConcurrentRun(t *testing.T) {
	fx := newValidationFixture(t, catalogStructure(false), nil, catalogData())

	// Claim the slot as a run in flight would.
	require.True(t, fx.tracker.TryStart(fx.projectID, models.ValidationStatus{}))

	_, err := fx.svc.Start(context.Background(), fx.projectID)
	assert.ErrorIs(t, err, apperrors.ErrValidationRunning)
}

func TestValidationService_StartUnknownProject(t *testing.T) {
	fx := newValidationFixture(t, nil, nil, nil)
	_, err := fx.svc.Start(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestValidationService_ColumnModeRule(t *testing.T) {
	files := []*models.File{{
		ID:   uuid.New(),
		Name: "codes.xlsx",
		Sheets: []*models.Sheet{{
			ID: uuid.New(), Name: "Codes", DataTableName: "data_codes_00000000",
			RowCount: 4, IsActive: true,
			Fields: []*models.Field{{
				ID: uuid.New(), Name: "Code", ColumnName: "code",
				Rules: []*models.Rule{{ID: uuid.New(), Type: "unique_value", Order: 1}},
			}},
		}},
	}}
	tables := map[string]map[string][]string{
		"data_codes_00000000": {"code": {"A1", "B2", "A1", "C3"}},
	}

	fx := newValidationFixture(t, files, nil, tables)
	fx.runToCompletion(t)

	saved := fx.results.saved
	require.NotNil(t, saved)
	// Both occurrences of the duplicate are flagged.
	require.Len(t, saved.Errors, 2)
	assert.Equal(t, int64(1), saved.Errors[0].Row)
	assert.Equal(t, int64(3), saved.Errors[1].Row)
}

func TestValidationService_GroupRule(t *testing.T) {
	group := &models.RuleGroup{
		ID:    uuid.New(),
		Name:  "Required number",
		Logic: models.LogicOr,
		Rules: []models.GroupRule{{TypeID: "not_empty"}, {TypeID: "is_number"}},
	}
	files := []*models.File{{
		ID: uuid.New(), Name: "data.xlsx",
		Sheets: []*models.Sheet{{
			ID: uuid.New(), Name: "Sheet1", DataTableName: "data_sheet1_00000000",
			RowCount: 3, IsActive: true,
			Fields: []*models.Field{{
				ID: uuid.New(), Name: "Amount", ColumnName: "amount",
				Rules: []*models.Rule{{ID: uuid.New(), GroupID: &group.ID, Order: 1}},
			}},
		}},
	}}
	tables := map[string]map[string][]string{
		"data_sheet1_00000000": {"amount": {"42", "", "abc"}},
	}

	fx := newValidationFixture(t, files, []*models.RuleGroup{group}, tables)
	fx.runToCompletion(t)

	saved := fx.results.saved
	require.NotNil(t, saved)
	require.Len(t, saved.Errors, 2)
	for _, e := range saved.Errors {
		// Reports carry the group's name, not any member's.
		assert.Equal(t, "Required number", e.RuleName)
	}
}

func TestValidationService_SkipsInactiveSheetsAndUnknownRules(t *testing.T) {
	files := catalogStructure(false)
	files[0].Sheets[0].Fields[0].Rules[0].Type = "no_such_rule"

	inactive := &models.Sheet{
		ID: uuid.New(), Name: "Old", DataTableName: "data_old_00000000",
		RowCount: 5, IsActive: false,
		Fields: []*models.Field{{
			ID: uuid.New(), Name: "X", ColumnName: "x",
			Rules: []*models.Rule{{ID: uuid.New(), Type: "not_empty", Order: 1}},
		}},
	}
	files[0].Sheets = append(files[0].Sheets, inactive)

	fx := newValidationFixture(t, files, nil, catalogData())
	status := fx.runToCompletion(t)

	assert.Contains(t, status.Message, "completed")
	saved := fx.results.saved
	require.NotNil(t, saved)
	// Only the is_number failure remains; the unknown rule is skipped and the
	// inactive sheet never read.
	require.Len(t, saved.Errors, 1)
	assert.Equal(t, "Price", saved.Errors[0].FieldName)
	assert.Equal(t, 3, saved.TotalRows)
}

func TestValidationService_EmptyProjectCompletes(t *testing.T) {
	fx := newValidationFixture(t, nil, nil, nil)
	status := fx.runToCompletion(t)

	assert.Equal(t, float64(100), status.Percentage)
	require.NotNil(t, fx.results.saved)
	assert.Empty(t, fx.results.saved.Errors)
}

func TestValidationService_PersistFailureReported(t *testing.T) {
	fx := newValidationFixture(t, catalogStructure(false), nil, catalogData())
	fx.results.saveErr = errors.New("disk full")

	status := fx.runToCompletion(t)
	assert.Contains(t, status.Message, "could not be saved")
	assert.Equal(t, float64(100), status.Percentage)
}

func TestValidationService_StructureFailure(t *testing.T) {
	fx := newValidationFixture(t, nil, nil, nil)
	fx.svc.(*validationService).structureRepo = &fakeStructureRepo{err: errors.New("boom")}

	_, err := fx.svc.Start(context.Background(), fx.projectID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !fx.svc.Status(fx.projectID).IsRunning
	}, 5*time.Second, 10*time.Millisecond)

	status := fx.svc.Status(fx.projectID)
	assert.Contains(t, status.Message, "failed")
	assert.Nil(t, fx.results.saved, "nothing may be persisted on a failed run")
}

func TestValidationService_LatestResults(t *testing.T) {
	fx := newValidationFixture(t, catalogStructure(true), nil, catalogData())
	fx.runToCompletion(t)

	report, err := fx.svc.LatestResults(context.Background(), fx.projectID)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalProcessedRows)
	assert.Equal(t, 1, report.RequiredFieldErrorRowsCount)
	require.Len(t, report.RequiredFieldErrors, 1)

	require.Len(t, report.FileResults, 1)
	file := report.FileResults[0]
	assert.Equal(t, "catalog.xlsx", file.FileName)
	require.Len(t, file.Sheets, 1)

	sheet := file.Sheets[0]
	assert.Equal(t, 3, sheet.TotalRows)
	assert.Equal(t, 1, sheet.SheetErrorRowsCount)
	assert.InDelta(t, 33.33, sheet.SheetErrorPercentage, 0.01)
	assert.Len(t, sheet.RuleSummaries, 2)
}

func TestValidationService_LatestResultsEmpty(t *testing.T) {
	fx := newValidationFixture(t, nil, nil, nil)
	_, err := fx.svc.LatestResults(context.Background(), fx.projectID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestValidationService_CheckConsistency(t *testing.T) {
	files := catalogStructure(false)
	tables := catalogData()
	// Declared 3 rows, but the table has only 2.
	for col, values := range tables["data_products_aabbccdd"] {
		tables["data_products_aabbccdd"][col] = values[:2]
	}

	fx := newValidationFixture(t, files, nil, tables)
	report, err := fx.svc.CheckConsistency(context.Background(), fx.projectID)
	require.NoError(t, err)

	require.Len(t, report, 1)
	assert.Equal(t, 3, report[0].DeclaredRows)
	assert.Equal(t, int64(2), report[0].ActualRows)
	assert.False(t, report[0].Consistent)
}

func TestWorkload(t *testing.T) {
	files := catalogStructure(false)
	// 3 rows x 2 rules on the active sheet.
	assert.Equal(t, 6, workload(files))

	files[0].Sheets[0].IsActive = false
	assert.Equal(t, 0, workload(files))
}
