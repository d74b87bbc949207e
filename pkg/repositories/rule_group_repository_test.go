//go:build integration

package repositories

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/models"
)

func TestRuleGroupRepository_CRUD(t *testing.T) {
	tc := setupStoreTest(t)
	repo := NewRuleGroupRepository()

	ctx, done := tc.scopedContext()
	defer done()

	group := &models.RuleGroup{
		Name:  "Code or empty",
		Logic: models.LogicAnd,
		Rules: []models.GroupRule{
			{TypeID: "digits_only"},
			{TypeID: "regex_check", Params: map[string]string{"pattern": `^[A-Z]{3}-\d+$`}},
		},
	}
	if err := repo.Create(ctx, group); err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	got, err := repo.Get(ctx, group.ID)
	if err != nil {
		t.Fatalf("failed to get group: %v", err)
	}
	if got.Name != group.Name || got.Logic != models.LogicAnd {
		t.Errorf("unexpected group: %+v", got)
	}
	if len(got.Rules) != 2 || got.Rules[0].TypeID != "digits_only" {
		t.Fatalf("members lost or reordered: %+v", got.Rules)
	}
	if got.Rules[1].Params["pattern"] != `^[A-Z]{3}-\d+$` {
		t.Errorf("member params lost: %v", got.Rules[1].Params)
	}

	got.Name = "renamed"
	got.Logic = models.LogicOr
	got.Rules = got.Rules[:1]
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("failed to update group: %v", err)
	}

	got, err = repo.Get(ctx, group.ID)
	if err != nil {
		t.Fatalf("failed to re-get group: %v", err)
	}
	if got.Name != "renamed" || got.Logic != models.LogicOr || len(got.Rules) != 1 {
		t.Errorf("update not applied: %+v", got)
	}

	if err := repo.Delete(ctx, group.ID); err != nil {
		t.Fatalf("failed to delete group: %v", err)
	}
	if _, err := repo.Get(ctx, group.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRuleGroupRepository_DuplicateCreateConflicts(t *testing.T) {
	tc := setupStoreTest(t)
	repo := NewRuleGroupRepository()

	ctx, done := tc.scopedContext()
	defer done()

	group := &models.RuleGroup{ID: uuid.New(), Name: "dup", Logic: models.LogicOr}
	if err := repo.Create(ctx, group); err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	if err := repo.Create(ctx, group); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestRuleGroupRepository_DeleteRejectsReferencedGroup(t *testing.T) {
	tc := setupStoreTest(t)
	repo := NewRuleGroupRepository()
	structRepo := NewStructureRepository()

	ctx, done := tc.scopedContext()
	defer done()

	group := &models.RuleGroup{Name: "in use", Logic: models.LogicOr,
		Rules: []models.GroupRule{{TypeID: "not_empty"}}}
	if err := repo.Create(ctx, group); err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	snapshot := sampleStructure(uuid.New())
	snapshot[0].Sheets[0].Fields[0].Rules = []*models.Rule{
		{ID: uuid.New(), GroupID: &group.ID, Order: 1},
	}
	if err := structRepo.UpsertStructure(ctx, snapshot); err != nil {
		t.Fatalf("failed to upsert structure: %v", err)
	}

	if err := repo.Delete(ctx, group.ID); !errors.Is(err, apperrors.ErrGroupInUse) {
		t.Fatalf("expected ErrGroupInUse, got %v", err)
	}

	// Detaching the rule unblocks the delete.
	snapshot[0].Sheets[0].Fields[0].Rules = nil
	if err := structRepo.UpsertStructure(ctx, snapshot); err != nil {
		t.Fatalf("failed to detach rule: %v", err)
	}
	if err := repo.Delete(ctx, group.ID); err != nil {
		t.Errorf("delete after detach failed: %v", err)
	}
}
