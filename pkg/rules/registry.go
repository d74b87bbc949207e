package rules

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Metadata is the serializable description of a rule type, exposed to
// clients for rule pickers and parameter forms.
type Metadata struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	IsConfigurable    bool        `json:"is_configurable"`
	NeedsColumnAccess bool        `json:"needs_column_access"`
	ParamsSchema      []ParamSpec `json:"params_schema,omitempty"`
}

// Registry maps rule-type ids to their validators. Construction is static:
// the built-in set is registered up front and the registry never changes at
// runtime (the spell rule reloads its dictionary in place instead).
type Registry struct {
	validators map[string]Validator
	logger     *zap.Logger
}

// NewRegistry builds a registry from the given validators. An implementation
// with an empty or duplicate id is skipped with a warning, never fatal.
func NewRegistry(logger *zap.Logger, validators ...Validator) *Registry {
	r := &Registry{
		validators: make(map[string]Validator, len(validators)),
		logger:     logger.Named("rules"),
	}
	for _, v := range validators {
		r.register(v)
	}
	return r
}

func (r *Registry) register(v Validator) {
	id := v.ID()
	if id == "" {
		r.logger.Warn("Skipping validator with empty id", zap.String("name", v.Name()))
		return
	}
	if _, exists := r.validators[id]; exists {
		r.logger.Warn("Skipping validator with duplicate id", zap.String("id", id))
		return
	}
	if v.Mode() == ColumnMode {
		if _, ok := v.(ColumnValidator); !ok {
			r.logger.Warn("Skipping column-mode validator without ValidateColumn", zap.String("id", id))
			return
		}
	}
	r.validators[id] = v
	r.logger.Info("Registered rule", zap.String("id", id), zap.String("mode", v.Mode().String()))
}

// Get returns the validator for a rule-type id.
func (r *Registry) Get(id string) (Validator, bool) {
	v, ok := r.validators[id]
	return v, ok
}

// List returns metadata for every registered rule, sorted by id for
// deterministic listings.
func (r *Registry) List() []Metadata {
	out := make([]Metadata, 0, len(r.validators))
	for _, v := range r.validators {
		out = append(out, Metadata{
			ID:                v.ID(),
			Name:              v.Name(),
			Description:       v.Description(),
			IsConfigurable:    v.Configurable(),
			NeedsColumnAccess: v.Mode() == ColumnMode,
			ParamsSchema:      v.Params(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reload re-reads external resources of every reloadable validator. Called
// after dictionary edits.
func (r *Registry) Reload() error {
	for id, v := range r.validators {
		if rl, ok := v.(Reloadable); ok {
			if err := rl.Reload(); err != nil {
				return fmt.Errorf("reload rule %s: %w", id, err)
			}
			r.logger.Info("Reloaded rule resources", zap.String("id", id))
		}
	}
	return nil
}

// SafeValidate runs a row-mode validator, converting a panic into an error so
// one misbehaving rule never aborts a run.
func SafeValidate(v Validator, value string, params map[string]string) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = Pass()
			err = fmt.Errorf("rule %s panicked: %v", v.ID(), rec)
		}
	}()
	return v.Validate(value, params), nil
}

// SafeValidateColumn runs a column-mode validator with the same panic
// isolation. On panic every row is treated as unchecked (valid).
func SafeValidateColumn(v ColumnValidator, values []string, params map[string]string) (outcomes []Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcomes = make([]Outcome, len(values))
			for i := range outcomes {
				outcomes[i] = Pass()
			}
			err = fmt.Errorf("rule %s panicked: %v", v.ID(), rec)
		}
	}()
	out := v.ValidateColumn(values, params)
	// A misaligned result is a contract violation; pad or truncate so the
	// caller can still zip outcomes with row ids.
	if len(out) != len(values) {
		err = fmt.Errorf("rule %s returned %d outcomes for %d values", v.ID(), len(out), len(values))
		aligned := make([]Outcome, len(values))
		for i := range aligned {
			if i < len(out) {
				aligned[i] = out[i]
			} else {
				aligned[i] = Pass()
			}
		}
		return aligned, err
	}
	return out, nil
}

// Builtins returns the full built-in rule set. dictionaryPath feeds the
// spell rule's word list.
func Builtins(logger *zap.Logger, dictionaryPath string) []Validator {
	return []Validator{
		&notEmptyRule{},
		&lengthCheckRule{},
		&isEmailRule{},
		&isNumberRule{},
		&digitsOnlyRule{},
		&containsDigitRule{},
		&containsLetterRule{},
		&startsWithCapitalRule{},
		&noLeadingTrailingSpacesRule{},
		&noSpecialCharsRule{},
		&inListCheckRule{},
		&substringCheckRule{},
		&regexCheckRule{},
		&dateFormatCheckRule{},
		&uniqueValueRule{},
		newSpellCheckRule(logger, dictionaryPath),
	}
}
