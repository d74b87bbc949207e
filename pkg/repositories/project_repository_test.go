//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/testhelpers"
)

func TestProjectRepository_CRUD(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewProjectRepository(testDB.DB)
	ctx := context.Background()

	project := &models.Project{
		Name:        "CRUD project",
		Description: "registry round trip",
	}
	if err := repo.Create(ctx, project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	t.Cleanup(func() { _ = repo.Delete(context.Background(), project.ID) })

	if project.ID == uuid.Nil {
		t.Fatal("Create should assign an id")
	}

	got, err := repo.Get(ctx, project.ID)
	if err != nil {
		t.Fatalf("failed to get project: %v", err)
	}
	if got.Name != "CRUD project" || got.Description != "registry round trip" {
		t.Errorf("unexpected project: %+v", got)
	}

	got.Name = "renamed"
	got.AutoRevalidate = true
	if err := repo.UpdateMeta(ctx, got); err != nil {
		t.Fatalf("failed to update project: %v", err)
	}

	got, err = repo.Get(ctx, project.ID)
	if err != nil {
		t.Fatalf("failed to re-get project: %v", err)
	}
	if got.Name != "renamed" || !got.AutoRevalidate {
		t.Errorf("update not applied: %+v", got)
	}

	if err := repo.Delete(ctx, project.ID); err != nil {
		t.Fatalf("failed to delete project: %v", err)
	}
	if _, err := repo.Get(ctx, project.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProjectRepository_NotFound(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewProjectRepository(testDB.DB)
	ctx := context.Background()
	missing := uuid.New()

	if _, err := repo.Get(ctx, missing); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, missing); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
	if err := repo.Touch(ctx, missing); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Touch: expected ErrNotFound, got %v", err)
	}
}

func TestProjectRepository_ListOrdersByActivity(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewProjectRepository(testDB.DB)
	ctx := context.Background()

	first := &models.Project{Name: "older"}
	second := &models.Project{Name: "newer"}
	for _, p := range []*models.Project{first, second} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("failed to create project: %v", err)
		}
	}
	t.Cleanup(func() {
		_ = repo.Delete(context.Background(), first.ID)
		_ = repo.Delete(context.Background(), second.ID)
	})

	// Touching the older project moves it to the front.
	if err := repo.Touch(ctx, first.ID); err != nil {
		t.Fatalf("failed to touch project: %v", err)
	}

	infos, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("failed to list projects: %v", err)
	}

	posFirst, posSecond := -1, -1
	for i, info := range infos {
		switch info.ID {
		case first.ID:
			posFirst = i
		case second.ID:
			posSecond = i
		}
	}
	if posFirst == -1 || posSecond == -1 {
		t.Fatalf("created projects missing from listing: %v", infos)
	}
	if posFirst > posSecond {
		t.Errorf("touched project should list before the untouched one")
	}
}
