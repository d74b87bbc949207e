package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/config"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/repositories"
	"github.com/ekaya-inc/dqengine/pkg/rules"
)

// ValidationService runs rule validation over a project's imported data and
// reports progress and results.
type ValidationService interface {
	// Start launches an asynchronous validation run and returns the initial
	// status snapshot. ErrValidationRunning when one is already in flight.
	Start(ctx context.Context, projectID uuid.UUID) (models.ValidationStatus, error)

	// Status returns the live status snapshot without touching storage.
	Status(projectID uuid.UUID) models.ValidationStatus

	// LatestResults returns the report of the last persisted run.
	LatestResults(ctx context.Context, projectID uuid.UUID) (*models.ValidationResults, error)

	// CheckConsistency compares each sheet's declared row count against the
	// live count of its backing table.
	CheckConsistency(ctx context.Context, projectID uuid.UUID) ([]models.SheetConsistency, error)
}

type validationService struct {
	projectCtx    database.ProjectContextFunc
	projectRepo   repositories.ProjectRepository
	structureRepo repositories.StructureRepository
	groupRepo     repositories.RuleGroupRepository
	dataRepo      repositories.DataRepository
	resultRepo    repositories.ResultRepository
	registry      *rules.Registry
	tracker       *StatusTracker
	cfg           config.ValidationConfig
	logger        *zap.Logger
}

// NewValidationService creates a new validation service.
func NewValidationService(
	projectCtx database.ProjectContextFunc,
	projectRepo repositories.ProjectRepository,
	structureRepo repositories.StructureRepository,
	groupRepo repositories.RuleGroupRepository,
	dataRepo repositories.DataRepository,
	resultRepo repositories.ResultRepository,
	registry *rules.Registry,
	tracker *StatusTracker,
	cfg config.ValidationConfig,
	logger *zap.Logger,
) ValidationService {
	return &validationService{
		projectCtx:    projectCtx,
		projectRepo:   projectRepo,
		structureRepo: structureRepo,
		groupRepo:     groupRepo,
		dataRepo:      dataRepo,
		resultRepo:    resultRepo,
		registry:      registry,
		tracker:       tracker,
		cfg:           cfg,
		logger:        logger.Named("validation_service"),
	}
}

func (s *validationService) Start(ctx context.Context, projectID uuid.UUID) (models.ValidationStatus, error) {
	if _, err := s.projectRepo.Get(ctx, projectID); err != nil {
		return models.ValidationStatus{}, err
	}

	initial := models.ValidationStatus{Message: "Preparing validation"}
	if !s.tracker.TryStart(projectID, initial) {
		return s.tracker.Get(projectID), apperrors.ErrValidationRunning
	}

	// The run outlives the request; it carries its own context.
	go s.run(context.Background(), projectID)

	return s.tracker.Get(projectID), nil
}

func (s *validationService) Status(projectID uuid.UUID) models.ValidationStatus {
	return s.tracker.Get(projectID)
}

// progress tracks processed operations for one run and pushes snapshots to
// the tracker. The reported percentage is capped below completion; only the
// terminal update may say 100.
type progress struct {
	tracker   *StatusTracker
	projectID uuid.UUID
	processed int
	total     int
	file      string
	sheet     string
	field     string
	rule      string
}

func (p *progress) advance(ops int) {
	p.processed += ops
	pct := float64(p.processed) / float64(p.total) * 100
	if pct > 99 {
		pct = 99
	}
	p.tracker.Set(p.projectID, models.ValidationStatus{
		IsRunning:    true,
		CurrentFile:  p.file,
		CurrentSheet: p.sheet,
		CurrentField: p.field,
		CurrentRule:  p.rule,
		ProcessedOps: p.processed,
		TotalOps:     p.total,
		Percentage:   pct,
		Message:      fmt.Sprintf("Validating %s / %s / %s", p.file, p.sheet, p.field),
	})
}

func (s *validationService) run(ctx context.Context, projectID uuid.UUID) {
	logger := s.logger.With(zap.String("project_id", projectID.String()))

	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		s.fail(projectID, fmt.Sprintf("Validation failed: %v", err))
		return
	}
	defer done()

	files, err := s.structureRepo.GetStructure(scopedCtx)
	if err != nil {
		s.fail(projectID, fmt.Sprintf("Validation failed: could not load structure: %v", err))
		return
	}
	groups, err := s.groupRepo.List(scopedCtx)
	if err != nil {
		s.fail(projectID, fmt.Sprintf("Validation failed: could not load rule groups: %v", err))
		return
	}
	groupIndex := make(map[uuid.UUID]*models.RuleGroup, len(groups))
	for _, g := range groups {
		groupIndex[g.ID] = g
	}

	prog := &progress{tracker: s.tracker, projectID: projectID, total: workload(files)}
	if prog.total == 0 {
		// Nothing to do still walks the loop below; a nominal total keeps the
		// percentage math defined.
		prog.total = s.cfg.NominalWorkload
	}

	var (
		collected []models.ValidationError
		totalRows int
	)
	for _, file := range files {
		prog.file = file.Name
		for _, sheet := range file.Sheets {
			if !sheet.IsActive || sheet.DataTableName == "" {
				continue
			}
			prog.sheet = sheet.Name
			totalRows += sheet.RowCount

			for _, field := range sheet.Fields {
				prog.field = field.Name
				errs := s.validateField(scopedCtx, logger, prog, file, sheet, field, groupIndex)
				collected = append(collected, errs...)
			}
		}
	}

	result := &repositories.StoredResult{
		TotalRows:         totalRows,
		RequiredErrorRows: countRequiredErrorRows(collected),
		Errors:            collected,
	}

	message := fmt.Sprintf("Validation completed: %d errors in %d rows", len(collected), totalRows)
	if err := s.resultRepo.SaveResults(scopedCtx, result); err != nil {
		logger.Error("Failed to persist validation results", zap.Error(err))
		message = fmt.Sprintf("Validation completed with %d errors, but results could not be saved: %v",
			len(collected), err)
	}

	s.tracker.Set(projectID, models.ValidationStatus{
		ProcessedOps: prog.processed,
		TotalOps:     prog.total,
		Percentage:   100,
		Message:      message,
	})
	logger.Info("Validation run finished",
		zap.Int("rows", totalRows),
		zap.Int("errors", len(collected)))
}

func (s *validationService) fail(projectID uuid.UUID, message string) {
	s.logger.Error("Validation run failed",
		zap.String("project_id", projectID.String()),
		zap.String("message", message))
	s.tracker.Set(projectID, models.ValidationStatus{Message: message})
}

// workload is the operation count of a full run: one operation per row per
// rule, summed over active sheets.
func workload(files []*models.File) int {
	total := 0
	for _, file := range files {
		for _, sheet := range file.Sheets {
			if !sheet.IsActive || sheet.DataTableName == "" {
				continue
			}
			ruleCount := 0
			for _, field := range sheet.Fields {
				ruleCount += len(field.Rules)
			}
			total += sheet.RowCount * ruleCount
		}
	}
	return total
}

// boundRule is one field rule resolved against the registry: either a direct
// validator or a rule group, with a display name for error reports.
type boundRule struct {
	name      string
	validator rules.Validator
	group     *models.RuleGroup
	params    map[string]string
}

func (s *validationService) validateField(
	ctx context.Context,
	logger *zap.Logger,
	prog *progress,
	file *models.File,
	sheet *models.Sheet,
	field *models.Field,
	groups map[uuid.UUID]*models.RuleGroup,
) []models.ValidationError {
	var columnRules, rowRules []boundRule
	for _, rule := range field.Rules {
		bound, ok := s.resolveRule(logger, rule, groups)
		if !ok {
			// Unknown references never stall progress.
			prog.advance(sheet.RowCount)
			continue
		}
		if bound.group == nil && bound.validator.Mode() == rules.ColumnMode {
			columnRules = append(columnRules, bound)
		} else {
			rowRules = append(rowRules, bound)
		}
	}

	var collected []models.ValidationError
	newError := func(rowID int64, value string, bound boundRule, outcome rules.Outcome) models.ValidationError {
		return models.ValidationError{
			FileName:   file.Name,
			SheetName:  sheet.Name,
			FieldName:  field.Name,
			IsRequired: field.IsRequired,
			Row:        rowID,
			RuleName:   bound.name,
			Value:      value,
			Details:    outcome.Details,
		}
	}

	for _, bound := range columnRules {
		prog.rule = bound.name
		cells, err := s.dataRepo.ReadColumn(ctx, sheet.DataTableName, field.ColumnName)
		if err != nil {
			logger.Error("Failed to read column, skipping rule",
				zap.String("field", field.Name),
				zap.String("rule", bound.name),
				zap.Error(err))
			prog.advance(sheet.RowCount)
			continue
		}

		values := make([]string, len(cells))
		for i, c := range cells {
			values[i] = c.Value
		}
		outcomes, err := rules.SafeValidateColumn(bound.validator.(rules.ColumnValidator), values, bound.params)
		if err != nil {
			logger.Error("Column rule failed", zap.String("rule", bound.name), zap.Error(err))
		}
		for i, outcome := range outcomes {
			if !outcome.Valid {
				collected = append(collected, newError(cells[i].RowID, cells[i].Value, bound, outcome))
			}
		}
		prog.advance(sheet.RowCount)
	}

	if len(rowRules) == 0 {
		return collected
	}

	var afterRowID int64
	for {
		batch, err := s.dataRepo.ReadRowsBatch(ctx, sheet.DataTableName, []string{field.ColumnName}, afterRowID, s.cfg.BatchSize)
		if err != nil {
			logger.Error("Failed to read batch, aborting field",
				zap.String("field", field.Name),
				zap.Error(err))
			return collected
		}
		if len(batch) == 0 {
			return collected
		}

		for _, bound := range rowRules {
			prog.rule = bound.name
			for _, row := range batch {
				value := row.Values[0]
				var outcome rules.Outcome
				if bound.group != nil {
					outcome = rules.EvaluateGroup(s.registry, bound.group, value)
				} else {
					outcome, err = rules.SafeValidate(bound.validator, value, bound.params)
					if err != nil {
						logger.Error("Row rule failed", zap.String("rule", bound.name), zap.Error(err))
					}
				}
				if !outcome.Valid {
					collected = append(collected, newError(row.RowID, value, bound, outcome))
				}
			}
			prog.advance(len(batch))
		}
		afterRowID = batch[len(batch)-1].RowID
	}
}

func (s *validationService) resolveRule(logger *zap.Logger, rule *models.Rule, groups map[uuid.UUID]*models.RuleGroup) (boundRule, bool) {
	if rule.IsGroup() {
		group, ok := groups[*rule.GroupID]
		if !ok {
			logger.Warn("Rule references unknown group, skipping",
				zap.String("group_id", rule.GroupID.String()))
			return boundRule{}, false
		}
		// The group's own name is what error reports show.
		return boundRule{name: group.Name, group: group}, true
	}

	v, ok := s.registry.Get(rule.Type)
	if !ok {
		logger.Warn("Rule references unknown type, skipping",
			zap.String("rule_type", rule.Type))
		return boundRule{}, false
	}
	return boundRule{name: v.DisplayName(rule.Params), validator: v, params: rule.Params}, true
}

// countRequiredErrorRows counts distinct rows having at least one error on a
// required field.
func countRequiredErrorRows(errs []models.ValidationError) int {
	type rowKey struct {
		file  string
		sheet string
		row   int64
	}
	seen := make(map[rowKey]struct{})
	for _, e := range errs {
		if e.IsRequired {
			seen[rowKey{e.FileName, e.SheetName, e.Row}] = struct{}{}
		}
	}
	return len(seen)
}

func (s *validationService) LatestResults(ctx context.Context, projectID uuid.UUID) (*models.ValidationResults, error) {
	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()

	stored, err := s.resultRepo.GetLatest(scopedCtx)
	if err != nil {
		return nil, err
	}
	files, err := s.structureRepo.GetStructure(scopedCtx)
	if err != nil {
		return nil, err
	}
	return buildResults(stored, files), nil
}

// buildResults assembles the report from stored errors, using the current
// structure for per-sheet row counts.
func buildResults(stored *repositories.StoredResult, files []*models.File) *models.ValidationResults {
	results := &models.ValidationResults{
		TotalProcessedRows:          stored.TotalRows,
		RequiredFieldErrorRowsCount: stored.RequiredErrorRows,
		ValidatedAt:                 stored.ValidatedAt,
	}

	type sheetKey struct{ file, sheet string }
	rowCounts := make(map[sheetKey]int)
	for _, file := range files {
		for _, sheet := range file.Sheets {
			rowCounts[sheetKey{file.Name, sheet.Name}] = sheet.RowCount
		}
	}

	byFile := make(map[string]map[string][]models.ValidationError)
	var fileOrder []string
	for _, e := range stored.Errors {
		if e.IsRequired {
			results.RequiredFieldErrors = append(results.RequiredFieldErrors, e)
		}
		if byFile[e.FileName] == nil {
			byFile[e.FileName] = make(map[string][]models.ValidationError)
			fileOrder = append(fileOrder, e.FileName)
		}
		byFile[e.FileName][e.SheetName] = append(byFile[e.FileName][e.SheetName], e)
	}

	for _, fileName := range fileOrder {
		summary := models.FileSummary{FileName: fileName}

		sheetNames := make([]string, 0, len(byFile[fileName]))
		for name := range byFile[fileName] {
			sheetNames = append(sheetNames, name)
		}
		sort.Strings(sheetNames)

		for _, sheetName := range sheetNames {
			errs := byFile[fileName][sheetName]
			totalRows := rowCounts[sheetKey{fileName, sheetName}]
			summary.Sheets = append(summary.Sheets, buildSheetSummary(sheetName, totalRows, errs))
		}
		results.FileResults = append(results.FileResults, summary)
	}
	return results
}

func buildSheetSummary(sheetName string, totalRows int, errs []models.ValidationError) models.SheetSummary {
	summary := models.SheetSummary{
		SheetName: sheetName,
		TotalRows: totalRows,
	}

	errorRows := make(map[int64]struct{})
	byRule := make(map[string][]models.ValidationError)
	var ruleOrder []string
	for _, e := range errs {
		errorRows[e.Row] = struct{}{}
		if _, ok := byRule[e.RuleName]; !ok {
			ruleOrder = append(ruleOrder, e.RuleName)
		}
		byRule[e.RuleName] = append(byRule[e.RuleName], e)
	}

	summary.SheetErrorRowsCount = len(errorRows)
	if totalRows > 0 {
		summary.SheetErrorPercentage = float64(len(errorRows)) / float64(totalRows) * 100
	}

	for _, ruleName := range ruleOrder {
		ruleErrs := byRule[ruleName]
		rs := models.RuleSummary{
			RuleName:       ruleName,
			ErrorCount:     len(ruleErrs),
			DetailedErrors: ruleErrs,
		}
		if totalRows > 0 {
			rs.ErrorPercentage = float64(len(ruleErrs)) / float64(totalRows) * 100
		}
		summary.RuleSummaries = append(summary.RuleSummaries, rs)
	}
	return summary
}

func (s *validationService) CheckConsistency(ctx context.Context, projectID uuid.UUID) ([]models.SheetConsistency, error) {
	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()

	files, err := s.structureRepo.GetStructure(scopedCtx)
	if err != nil {
		return nil, err
	}

	var report []models.SheetConsistency
	for _, file := range files {
		for _, sheet := range file.Sheets {
			if sheet.DataTableName == "" {
				continue
			}
			actual, err := s.dataRepo.CountRows(scopedCtx, sheet.DataTableName)
			if err != nil {
				return nil, fmt.Errorf("count rows of sheet %q: %w", sheet.Name, err)
			}
			report = append(report, models.SheetConsistency{
				SheetName:     sheet.Name,
				DeclaredRows:  sheet.RowCount,
				ActualRows:    actual,
				DataTableName: sheet.DataTableName,
				Consistent:    int64(sheet.RowCount) == actual,
			})
		}
	}
	return report, nil
}

// Ensure validationService implements ValidationService at compile time.
var _ ValidationService = (*validationService)(nil)
var _ ValidationStarter = (*validationService)(nil)
