package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidationRunning = errors.New("validation already running for this project")
	ErrRuleConfig        = errors.New("rule must reference exactly one of a rule type or a rule group")
	ErrUnknownRuleType   = errors.New("unknown rule type")
	ErrGroupInUse        = errors.New("rule group is referenced by one or more rules")
	ErrFileTooLarge      = errors.New("uploaded file exceeds the size limit")
	ErrTooManyRows       = errors.New("workbook exceeds the row limit")
	ErrUnsupportedFile   = errors.New("unsupported file type, only .xlsx and .xls are accepted")
)
