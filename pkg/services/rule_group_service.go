package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/repositories"
	"github.com/ekaya-inc/dqengine/pkg/rules"
)

// RuleGroupService manages a project's reusable rule groups.
type RuleGroupService interface {
	List(ctx context.Context, projectID uuid.UUID) ([]*models.RuleGroup, error)
	Create(ctx context.Context, projectID uuid.UUID, group *models.RuleGroup) error
	Update(ctx context.Context, projectID uuid.UUID, group *models.RuleGroup) error
	Delete(ctx context.Context, projectID, groupID uuid.UUID) error
}

type ruleGroupService struct {
	projectCtx database.ProjectContextFunc
	groupRepo  repositories.RuleGroupRepository
	registry   *rules.Registry
	logger     *zap.Logger
}

// NewRuleGroupService creates a new rule group service.
func NewRuleGroupService(
	projectCtx database.ProjectContextFunc,
	groupRepo repositories.RuleGroupRepository,
	registry *rules.Registry,
	logger *zap.Logger,
) RuleGroupService {
	return &ruleGroupService{
		projectCtx: projectCtx,
		groupRepo:  groupRepo,
		registry:   registry,
		logger:     logger.Named("rule_group_service"),
	}
}

func (s *ruleGroupService) List(ctx context.Context, projectID uuid.UUID) ([]*models.RuleGroup, error) {
	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()
	return s.groupRepo.List(scopedCtx)
}

func (s *ruleGroupService) Create(ctx context.Context, projectID uuid.UUID, group *models.RuleGroup) error {
	if err := s.checkGroup(group); err != nil {
		return err
	}

	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()

	if err := s.groupRepo.Create(scopedCtx, group); err != nil {
		return err
	}
	s.logger.Info("Created rule group",
		zap.String("project_id", projectID.String()),
		zap.String("name", group.Name))
	return nil
}

func (s *ruleGroupService) Update(ctx context.Context, projectID uuid.UUID, group *models.RuleGroup) error {
	if err := s.checkGroup(group); err != nil {
		return err
	}

	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()
	return s.groupRepo.Update(scopedCtx, group)
}

func (s *ruleGroupService) Delete(ctx context.Context, projectID, groupID uuid.UUID) error {
	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()
	return s.groupRepo.Delete(scopedCtx, groupID)
}

// checkGroup validates the group shape and that every member is a known
// row-mode rule type.
func (s *ruleGroupService) checkGroup(group *models.RuleGroup) error {
	if err := group.Validate(); err != nil {
		return err
	}
	for _, member := range group.Rules {
		v, ok := s.registry.Get(member.TypeID)
		if !ok {
			return fmt.Errorf("group member %q: %w", member.TypeID, apperrors.ErrUnknownRuleType)
		}
		if v.Mode() != rules.RowMode {
			return fmt.Errorf("group member %q must be a row rule: %w", member.TypeID, apperrors.ErrRuleConfig)
		}
	}
	return nil
}

// Ensure ruleGroupService implements RuleGroupService at compile time.
var _ RuleGroupService = (*ruleGroupService)(nil)
