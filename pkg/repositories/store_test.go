//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/testhelpers"
)

// storeTestContext provisions a throwaway project store for one test and
// hands out contexts scoped to it.
type storeTestContext struct {
	t         *testing.T
	testDB    *testhelpers.TestDB
	projectID uuid.UUID
}

func setupStoreTest(t *testing.T) *storeTestContext {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	tc := &storeTestContext{
		t:         t,
		testDB:    testDB,
		projectID: uuid.New(),
	}

	ctx := context.Background()
	projectRepo := NewProjectRepository(testDB.DB)
	if err := projectRepo.Create(ctx, &models.Project{ID: tc.projectID, Name: "store test"}); err != nil {
		t.Fatalf("failed to create registry row: %v", err)
	}
	if err := testDB.DB.CreateProjectStore(ctx, tc.projectID); err != nil {
		t.Fatalf("failed to create project store: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx := context.Background()
		_ = testDB.DB.DropProjectStore(cleanupCtx, tc.projectID)
		_ = projectRepo.Delete(cleanupCtx, tc.projectID)
	})
	return tc
}

// scopedContext returns a context carrying the project scope.
func (tc *storeTestContext) scopedContext() (context.Context, func()) {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.testDB.DB.WithProject(ctx, tc.projectID)
	if err != nil {
		tc.t.Fatalf("failed to create project scope: %v", err)
	}
	return database.SetProjectScope(ctx, scope), func() { scope.Close() }
}

// sampleStructure builds a one-file, one-sheet, two-field snapshot.
func sampleStructure(sheetID uuid.UUID) []*models.File {
	return []*models.File{
		{
			ID:   uuid.New(),
			Name: "catalog.xlsx",
			Sheets: []*models.Sheet{
				{
					ID:            sheetID,
					Name:          "Products",
					DataTableName: database.DataTableName("Products", sheetID),
					RowCount:      3,
					IsActive:      true,
					Fields: []*models.Field{
						{
							ID:         uuid.New(),
							Name:       "Name",
							ColumnName: "name",
							IsRequired: true,
							Rules: []*models.Rule{
								{ID: uuid.New(), Type: "not_empty", Order: 1},
							},
						},
						{
							ID:         uuid.New(),
							Name:       "Price",
							ColumnName: "price",
							Rules: []*models.Rule{
								{ID: uuid.New(), Type: "is_number", Order: 1,
									Params: map[string]string{"number_type": "any"}},
							},
						},
					},
				},
			},
		},
	}
}
