// Package rules contains the validator registry and the built-in rule types.
//
// The original system discovered rule plugins by scanning a directory and
// probing module attributes. Here every rule is a compiled-in Validator
// implementation registered explicitly; only the dictionary-backed spell rule
// keeps a reload hook for its word list.
package rules

import (
	"strconv"
	"strings"
)

// Mode declares how a validator consumes data.
type Mode int

const (
	// RowMode validators are called once per cell.
	RowMode Mode = iota
	// ColumnMode validators are called once per field with the whole column,
	// for rules needing global context (uniqueness, spell heuristics).
	ColumnMode
)

func (m Mode) String() string {
	if m == ColumnMode {
		return "column"
	}
	return "row"
}

// Outcome is the single result shape every validator returns. The original
// plugins returned either a bare bool or an {is_valid, errors} mapping;
// that coercion now happens inside each implementation, never at call sites.
type Outcome struct {
	Valid   bool
	Details []string
}

// Pass returns a valid outcome.
func Pass() Outcome {
	return Outcome{Valid: true}
}

// Fail returns an invalid outcome with optional detail strings.
func Fail(details ...string) Outcome {
	return Outcome{Valid: false, Details: details}
}

// Detail returns the first detail string, or empty.
func (o Outcome) Detail() string {
	if len(o.Details) == 0 {
		return ""
	}
	return o.Details[0]
}

// ParamType tells the UI how to render a parameter input.
type ParamType string

const (
	ParamText     ParamType = "text"
	ParamNumber   ParamType = "number"
	ParamCheckbox ParamType = "checkbox"
	ParamSelect   ParamType = "select"
)

// Option is one choice of a select parameter.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ParamSpec describes one named parameter of a configurable rule, enough for
// the UI to render an input and for structure validation to check presence.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Label       string    `json:"label"`
	Default     string    `json:"default,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Options     []Option  `json:"options,omitempty"`
}

// Validator is the uniform contract every rule type satisfies. Validate is
// the row-mode entry point; column-mode rules additionally implement
// ColumnValidator and their Validate is never dispatched by the orchestrator.
type Validator interface {
	ID() string
	Name() string
	Description() string
	Mode() Mode
	Configurable() bool
	Params() []ParamSpec

	// DisplayName renders a human label from parameter values, e.g.
	// "Length between 3 and 10". Falls back to Name for nil params.
	DisplayName(params map[string]string) string

	// Validate checks a single cell value.
	Validate(value string, params map[string]string) Outcome
}

// ColumnValidator is implemented by validators with Mode() == ColumnMode.
// ValidateColumn returns one outcome per input value, aligned by index.
type ColumnValidator interface {
	Validator
	ValidateColumn(values []string, params map[string]string) []Outcome
}

// Reloadable is implemented by validators backed by an external resource that
// can change at runtime (the custom dictionary of the spell rule).
type Reloadable interface {
	Reload() error
}

// isBlank reports whether a cell value is empty or whitespace-only. Imported
// data is all text; blank cells are the empty string.
func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

func paramBool(params map[string]string, name string, def bool) bool {
	v, ok := params[name]
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func paramInt(params map[string]string, name string, def int) int {
	v, ok := params[name]
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}
