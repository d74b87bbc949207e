package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/config"
	"github.com/ekaya-inc/dqengine/pkg/database"
	"github.com/ekaya-inc/dqengine/pkg/models"
	"github.com/ekaya-inc/dqengine/pkg/repositories"
)

// ImportService ingests spreadsheet workbooks into a project's store. One
// upload is one transaction: either every sheet lands as a data table with
// its structure rows, or nothing changes.
type ImportService interface {
	Upload(ctx context.Context, projectID uuid.UUID, filename string, content []byte) (*models.File, error)
}

type importService struct {
	projectCtx    database.ProjectContextFunc
	projectRepo   repositories.ProjectRepository
	structureRepo repositories.StructureRepository
	dataRepo      repositories.DataRepository
	cfg           config.ImportConfig
	logger        *zap.Logger
}

// NewImportService creates a new import service.
func NewImportService(
	projectCtx database.ProjectContextFunc,
	projectRepo repositories.ProjectRepository,
	structureRepo repositories.StructureRepository,
	dataRepo repositories.DataRepository,
	cfg config.ImportConfig,
	logger *zap.Logger,
) ImportService {
	return &importService{
		projectCtx:    projectCtx,
		projectRepo:   projectRepo,
		structureRepo: structureRepo,
		dataRepo:      dataRepo,
		cfg:           cfg,
		logger:        logger.Named("import_service"),
	}
}

// parsedSheet is one workbook tab split into header and data rows, with
// normalized column identifiers aligned to the header.
type parsedSheet struct {
	name    string
	headers []string
	columns []string
	rows    [][]string
}

func (s *importService) Upload(ctx context.Context, projectID uuid.UUID, filename string, content []byte) (*models.File, error) {
	if err := s.checkUpload(filename, content); err != nil {
		return nil, err
	}
	if _, err := s.projectRepo.Get(ctx, projectID); err != nil {
		return nil, err
	}

	sheets, err := s.parseWorkbook(content)
	if err != nil {
		// Legacy BIFF .xls workbooks pass the extension check but cannot be
		// parsed; surface them as unsupported rather than a parse failure.
		if strings.EqualFold(filepath.Ext(filename), ".xls") {
			return nil, fmt.Errorf("%w: legacy .xls workbooks are not readable, re-save as .xlsx", apperrors.ErrUnsupportedFile)
		}
		return nil, err
	}

	file := &models.File{
		ID:         uuid.New(),
		Name:       filename,
		UploadedAt: time.Now(),
	}
	file.SavedName = file.ID.String() + filepath.Ext(filename)

	scopedCtx, done, err := s.projectCtx(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("scope project %s: %w", projectID, err)
	}
	defer done()

	scope, _ := database.GetProjectScope(scopedCtx)
	tx, err := scope.Conn.Begin(scopedCtx)
	if err != nil {
		return nil, fmt.Errorf("begin import transaction: %w", err)
	}
	defer tx.Rollback(scopedCtx)

	for _, parsed := range sheets {
		sheet := &models.Sheet{
			ID:       uuid.New(),
			Name:     parsed.name,
			RowCount: len(parsed.rows),
			IsActive: true,
		}
		sheet.DataTableName = database.DataTableName(parsed.name, sheet.ID)

		for i, header := range parsed.headers {
			sheet.Fields = append(sheet.Fields, &models.Field{
				ID:         uuid.New(),
				Name:       header,
				ColumnName: parsed.columns[i],
			})
		}

		if err := s.dataRepo.CreateSheetTable(scopedCtx, tx, sheet.DataTableName, parsed.columns); err != nil {
			return nil, err
		}
		if err := s.dataRepo.AppendRows(scopedCtx, tx, sheet.DataTableName, parsed.columns, parsed.rows); err != nil {
			return nil, err
		}

		file.Sheets = append(file.Sheets, sheet)
	}

	if err := s.structureRepo.SaveImportedFile(scopedCtx, tx, file); err != nil {
		return nil, err
	}
	if err := tx.Commit(scopedCtx); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}

	// The archive is retention, not part of the store: a failed write is
	// logged but the committed import stands.
	if err := s.archive(projectID, file.SavedName, content); err != nil {
		s.logger.Warn("Failed to archive workbook",
			zap.String("file", filename),
			zap.Error(err))
	}

	if err := s.projectRepo.Touch(ctx, projectID); err != nil {
		s.logger.Warn("Failed to touch project after import", zap.Error(err))
	}

	s.logger.Info("Imported workbook",
		zap.String("project_id", projectID.String()),
		zap.String("file", filename),
		zap.Int("sheets", len(file.Sheets)))
	return file, nil
}

func (s *importService) checkUpload(filename string, content []byte) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
	default:
		return apperrors.ErrUnsupportedFile
	}
	if int64(len(content)) > s.cfg.MaxFileSizeBytes {
		return apperrors.ErrFileTooLarge
	}
	return nil
}

func (s *importService) parseWorkbook(content []byte) ([]parsedSheet, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var sheets []parsedSheet
	totalRows := 0
	for _, name := range wb.GetSheetList() {
		rows, err := wb.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}

		parsed := parsedSheet{name: name, headers: rows[0]}
		parsed.columns = normalizeColumns(parsed.headers)

		for _, row := range rows[1:] {
			// GetRows trims trailing empty cells; pad to the header width.
			padded := make([]string, len(parsed.headers))
			copy(padded, row)
			parsed.rows = append(parsed.rows, padded)
		}
		totalRows += len(parsed.rows)
		if totalRows > s.cfg.MaxRows {
			return nil, apperrors.ErrTooManyRows
		}

		sheets = append(sheets, parsed)
	}

	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no non-empty sheets")
	}
	return sheets, nil
}

// normalizeColumns maps header names to unique normalized identifiers.
// Duplicate headers get a numeric suffix so every column lands in its own
// table column.
func normalizeColumns(headers []string) []string {
	columns := make([]string, len(headers))
	seen := make(map[string]bool, len(headers))
	for i, header := range headers {
		base := database.NormalizeIdentifier(header)
		col := base
		for n := 2; seen[col]; n++ {
			col = fmt.Sprintf("%s_%d", base, n)
		}
		seen[col] = true
		columns[i] = col
	}
	return columns
}

func (s *importService) archive(projectID uuid.UUID, savedName string, content []byte) error {
	dir := filepath.Join(s.cfg.ArchiveDir, projectID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(dir, savedName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	return nil
}

// Ensure importService implements ImportService at compile time.
var _ ImportService = (*importService)(nil)
