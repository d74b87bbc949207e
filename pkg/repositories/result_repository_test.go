//go:build integration

package repositories

import (
	"errors"
	"testing"
	"time"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/models"
)

func TestResultRepository_SaveAndGetLatest(t *testing.T) {
	tc := setupStoreTest(t)
	repo := NewResultRepository()

	ctx, done := tc.scopedContext()
	defer done()

	first := &StoredResult{
		TotalRows:         10,
		RequiredErrorRows: 1,
		ValidatedAt:       time.Now().Add(-time.Hour),
		Errors: []models.ValidationError{
			{FileName: "catalog.xlsx", SheetName: "Products", FieldName: "Name",
				Row: 2, RuleName: "Must not be empty", IsRequired: true},
		},
	}
	if err := repo.SaveResults(ctx, first); err != nil {
		t.Fatalf("failed to save first result: %v", err)
	}

	second := &StoredResult{
		TotalRows: 12,
		Errors: []models.ValidationError{
			{FileName: "catalog.xlsx", SheetName: "Products", FieldName: "Price",
				Row: 5, RuleName: "Numeric value", Value: "abc",
				Details: []string{`value "abc" is not a number`}},
			{FileName: "catalog.xlsx", SheetName: "Products", FieldName: "Price",
				Row: 7, RuleName: "Numeric value", Value: "-"},
		},
	}
	if err := repo.SaveResults(ctx, second); err != nil {
		t.Fatalf("failed to save second result: %v", err)
	}

	got, err := repo.GetLatest(ctx)
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if got.TotalRows != 12 {
		t.Errorf("latest run should win: %+v", got)
	}
	if len(got.Errors) != 2 {
		t.Fatalf("got %d errors, want 2", len(got.Errors))
	}
	e := got.Errors[0]
	if e.FieldName != "Price" || e.Row != 5 || e.Value != "abc" {
		t.Errorf("unexpected error row: %+v", e)
	}
	if len(e.Details) != 1 || e.Details[0] != `value "abc" is not a number` {
		t.Errorf("details lost: %v", e.Details)
	}
	if got.Errors[1].Details != nil {
		t.Errorf("absent details should stay nil, got %v", got.Errors[1].Details)
	}
}

func TestResultRepository_GetLatestEmpty(t *testing.T) {
	tc := setupStoreTest(t)
	repo := NewResultRepository()

	ctx, done := tc.scopedContext()
	defer done()

	if _, err := repo.GetLatest(ctx); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
