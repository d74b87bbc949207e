package models

import "time"

// ValidationStatus is the live progress snapshot for one project's validation
// run. Only the latest snapshot is kept; set overwrites the whole record.
type ValidationStatus struct {
	IsRunning    bool    `json:"is_running"`
	CurrentFile  string  `json:"current_file"`
	CurrentSheet string  `json:"current_sheet"`
	CurrentField string  `json:"current_field"`
	CurrentRule  string  `json:"current_rule"`
	ProcessedOps int     `json:"processed_ops"`
	TotalOps     int     `json:"total_ops"`
	Percentage   float64 `json:"percentage"`
	Message      string  `json:"message"`
}

// ValidationError is one failed check on one row. File, sheet and field names
// are denormalized so the report reads without joins. Row is the stable row
// identifier assigned at import.
type ValidationError struct {
	FileName   string   `json:"file_name"`
	SheetName  string   `json:"sheet_name"`
	FieldName  string   `json:"field_name"`
	IsRequired bool     `json:"is_required"`
	Row        int64    `json:"row"`
	RuleName   string   `json:"error_type"`
	Value      string   `json:"value"`
	Details    []string `json:"details,omitempty"`
}

// RuleSummary aggregates one rule's failures within a sheet.
type RuleSummary struct {
	RuleName        string            `json:"rule_name"`
	ErrorCount      int               `json:"error_count"`
	ErrorPercentage float64           `json:"error_percentage"`
	DetailedErrors  []ValidationError `json:"detailed_errors"`
}

// SheetSummary aggregates a sheet's failures across all its rules.
type SheetSummary struct {
	SheetName            string        `json:"sheet_name"`
	TotalRows            int           `json:"total_rows"`
	SheetErrorRowsCount  int           `json:"sheet_error_rows_count"`
	SheetErrorPercentage float64       `json:"sheet_error_percentage"`
	RuleSummaries        []RuleSummary `json:"rule_summaries"`
}

// FileSummary groups sheet summaries under their file.
type FileSummary struct {
	FileName string         `json:"file_name"`
	Sheets   []SheetSummary `json:"sheets"`
}

// ValidationResults is the full report of one validation run.
type ValidationResults struct {
	TotalProcessedRows          int               `json:"total_processed_rows"`
	RequiredFieldErrorRowsCount int               `json:"required_field_error_rows_count"`
	RequiredFieldErrors         []ValidationError `json:"required_field_errors"`
	FileResults                 []FileSummary     `json:"file_results"`
	ValidatedAt                 time.Time         `json:"validated_at"`
}

// SheetConsistency compares a sheet's declared row count against the live
// count of its backing table. Drift indicates a partial import or out-of-band
// data changes; it is reported separately from validation errors.
type SheetConsistency struct {
	SheetName     string `json:"sheet_name"`
	DeclaredRows  int    `json:"declared_rows"`
	ActualRows    int64  `json:"actual_rows"`
	DataTableName string `json:"data_table_name"`
	Consistent    bool   `json:"consistent"`
}
