package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/jsonutil"
	"github.com/ekaya-inc/dqengine/pkg/models"
)

// RuleGroupRepository manages the reusable rule groups of a project's store.
// Rules reference groups weakly: deleting a group that any rule still points
// at is rejected with ErrGroupInUse.
type RuleGroupRepository interface {
	List(ctx context.Context) ([]*models.RuleGroup, error)
	Get(ctx context.Context, id uuid.UUID) (*models.RuleGroup, error)
	Create(ctx context.Context, group *models.RuleGroup) error
	Update(ctx context.Context, group *models.RuleGroup) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ruleGroupRepository struct{}

// NewRuleGroupRepository creates a new rule group repository.
func NewRuleGroupRepository() RuleGroupRepository {
	return &ruleGroupRepository{}
}

func (r *ruleGroupRepository) List(ctx context.Context) ([]*models.RuleGroup, error) {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no project scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `SELECT id, name, logic FROM rule_groups ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.RuleGroup
	index := make(map[uuid.UUID]*models.RuleGroup)
	for rows.Next() {
		var g models.RuleGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Logic); err != nil {
			return nil, fmt.Errorf("failed to scan rule group: %w", err)
		}
		groups = append(groups, &g)
		index[g.ID] = &g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule groups: %w", err)
	}

	memberRows, err := scope.Conn.Query(ctx, `
		SELECT group_id, rule_type, params
		FROM rule_group_members
		ORDER BY group_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule group members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var groupID uuid.UUID
		var member models.GroupRule
		var params []byte
		if err := memberRows.Scan(&groupID, &member.TypeID, &params); err != nil {
			return nil, fmt.Errorf("failed to scan rule group member: %w", err)
		}
		member.Params, err = jsonutil.FlexibleStringMap(params)
		if err != nil {
			return nil, fmt.Errorf("failed to decode member params: %w", err)
		}
		if g, ok := index[groupID]; ok {
			g.Rules = append(g.Rules, member)
		}
	}
	return groups, memberRows.Err()
}

func (r *ruleGroupRepository) Get(ctx context.Context, id uuid.UUID) (*models.RuleGroup, error) {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no project scope in context")
	}

	var g models.RuleGroup
	err := scope.Conn.QueryRow(ctx, `SELECT id, name, logic FROM rule_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.Logic)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rule group: %w", err)
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT rule_type, params
		FROM rule_group_members
		WHERE group_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member models.GroupRule
		var params []byte
		if err := rows.Scan(&member.TypeID, &params); err != nil {
			return nil, fmt.Errorf("failed to scan rule group member: %w", err)
		}
		member.Params, err = jsonutil.FlexibleStringMap(params)
		if err != nil {
			return nil, fmt.Errorf("failed to decode member params: %w", err)
		}
		g.Rules = append(g.Rules, member)
	}
	return &g, rows.Err()
}

// Create inserts a new group with its members. A duplicate id is a conflict,
// not an upsert: groups are shared references and silent replacement would
// change the meaning of every rule pointing at the id.
func (r *ruleGroupRepository) Create(ctx context.Context, group *models.RuleGroup) error {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return fmt.Errorf("no project scope in context")
	}

	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		INSERT INTO rule_groups (id, name, logic)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		group.ID, group.Name, group.Logic)
	if err != nil {
		return fmt.Errorf("failed to create rule group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}

	if err := insertMembers(ctx, tx, group); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rule group: %w", err)
	}
	return nil
}

// Update replaces a group's name, logic and member list.
func (r *ruleGroupRepository) Update(ctx context.Context, group *models.RuleGroup) error {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return fmt.Errorf("no project scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `UPDATE rule_groups SET name = $2, logic = $3 WHERE id = $1`,
		group.ID, group.Name, group.Logic)
	if err != nil {
		return fmt.Errorf("failed to update rule group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rule_group_members WHERE group_id = $1`, group.ID); err != nil {
		return fmt.Errorf("failed to clear rule group members: %w", err)
	}
	if err := insertMembers(ctx, tx, group); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rule group: %w", err)
	}
	return nil
}

// Delete removes an unreferenced group and its members.
func (r *ruleGroupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetProjectScope(ctx)
	if !ok {
		return fmt.Errorf("no project scope in context")
	}

	var refs int
	err := scope.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM rules WHERE group_id = $1`, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count rule group references: %w", err)
	}
	if refs > 0 {
		return apperrors.ErrGroupInUse
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM rule_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func insertMembers(ctx context.Context, tx pgx.Tx, group *models.RuleGroup) error {
	for pos, member := range group.Rules {
		params, err := json.Marshal(member.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal member params: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO rule_group_members (group_id, position, rule_type, params)
			VALUES ($1, $2, $3, $4)`,
			group.ID, pos, member.TypeID, params)
		if err != nil {
			return fmt.Errorf("failed to insert rule group member: %w", err)
		}
	}
	return nil
}

// Ensure ruleGroupRepository implements RuleGroupRepository at compile time.
var _ RuleGroupRepository = (*ruleGroupRepository)(nil)
