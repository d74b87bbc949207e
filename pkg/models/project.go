// Package models contains domain types for dqengine.
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
	"github.com/ekaya-inc/dqengine/pkg/jsonutil"
)

// Project is the root of the schema hierarchy. Its metadata lives in the
// shared registry store; everything it owns lives in the project's isolated
// schema.
type Project struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	AutoRevalidate bool      `json:"auto_revalidate"`
	Files          []*File   `json:"files"`
}

// ProjectInfo is the listing shape: registry metadata plus the on-disk size
// of the project's store.
type ProjectInfo struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
	SizeKB      float64   `json:"size_kb"`
}

// File records one uploaded workbook. SavedName is the generated name under
// the archive directory; Name is what the user uploaded.
type File struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	SavedName  string    `json:"saved_name"`
	UploadedAt time.Time `json:"uploaded_at"`
	Sheets     []*Sheet  `json:"sheets"`
}

// Sheet is one spreadsheet tab. DataTableName is the backing data table in
// the project schema; RowCount is recorded at import time. Inactive sheets
// keep their data but are skipped by validation.
type Sheet struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	DataTableName string    `json:"data_table_name"`
	RowCount      int       `json:"row_count"`
	IsActive      bool      `json:"is_active"`
	Fields        []*Field  `json:"fields"`
}

// Field is one spreadsheet column. Name is the original header for display;
// ColumnName is the normalized identifier of the backing table column.
type Field struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	ColumnName string    `json:"column_name"`
	IsRequired bool      `json:"is_required"`
	Rules      []*Rule   `json:"rules"`
}

// Rule binds a field to either a rule type from the registry or a rule group,
// never both and never neither. Order defines execution sequence within the
// field.
type Rule struct {
	ID      uuid.UUID         `json:"id"`
	Type    string            `json:"type,omitempty"`
	GroupID *uuid.UUID        `json:"group_id,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Order   int               `json:"order"`
}

// UnmarshalJSON decodes params leniently: clients send numeric and boolean
// parameter values as JSON numbers and booleans.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	aux := struct {
		*alias
		Params json.RawMessage `json:"params,omitempty"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	params, err := jsonutil.FlexibleStringMap(aux.Params)
	if err != nil {
		return fmt.Errorf("rule params: %w", err)
	}
	r.Params = params
	return nil
}

// Validate enforces the type-XOR-group invariant.
func (r *Rule) Validate() error {
	hasType := r.Type != ""
	hasGroup := r.GroupID != nil && *r.GroupID != uuid.Nil
	if hasType == hasGroup {
		return apperrors.ErrRuleConfig
	}
	return nil
}

// IsGroup reports whether the rule references a rule group.
func (r *Rule) IsGroup() bool {
	return r.GroupID != nil && *r.GroupID != uuid.Nil
}

// Logic is a rule group's boolean combinator.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// IsValid reports whether the logic value is one of the two combinators.
func (l Logic) IsValid() bool {
	return l == LogicAnd || l == LogicOr
}

// GroupRule is one member of a rule group: a rule type plus its parameters.
// Members must be row-mode rule types.
type GroupRule struct {
	TypeID string            `json:"id"`
	Params map[string]string `json:"params,omitempty"`
}

// UnmarshalJSON decodes member params with the same leniency as Rule params.
func (m *GroupRule) UnmarshalJSON(data []byte) error {
	type alias GroupRule
	aux := struct {
		*alias
		Params json.RawMessage `json:"params,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	params, err := jsonutil.FlexibleStringMap(aux.Params)
	if err != nil {
		return fmt.Errorf("group member params: %w", err)
	}
	m.Params = params
	return nil
}

// RuleGroup is a named, reusable boolean combination of rule types. Groups
// are shared read-only references: many rules across many fields may attach
// the same group.
type RuleGroup struct {
	ID    uuid.UUID   `json:"id"`
	Name  string      `json:"name"`
	Logic Logic       `json:"logic"`
	Rules []GroupRule `json:"rules"`
}

// Validate checks the group's logic and member references.
func (g *RuleGroup) Validate() error {
	if g.Name == "" || !g.Logic.IsValid() {
		return apperrors.ErrRuleConfig
	}
	for _, m := range g.Rules {
		if m.TypeID == "" {
			return apperrors.ErrRuleConfig
		}
	}
	return nil
}

// SortRules orders a field's rules by their declared order, falling back to
// id for a deterministic tie-break.
func SortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Order != rules[j].Order {
			return rules[i].Order < rules[j].Order
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})
}

// SortFields orders fields by display name for deterministic traversal.
func SortFields(fields []*Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})
}
