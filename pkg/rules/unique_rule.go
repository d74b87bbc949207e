package rules

import "strings"

// uniqueValueRule flags every occurrence of a duplicated value within a
// column. Blank cells never participate in the comparison.
type uniqueValueRule struct{}

func (r *uniqueValueRule) ID() string   { return "unique_value" }
func (r *uniqueValueRule) Name() string { return "Unique value" }
func (r *uniqueValueRule) Description() string {
	return "Checks that every value in the column is unique."
}
func (r *uniqueValueRule) Mode() Mode         { return ColumnMode }
func (r *uniqueValueRule) Configurable() bool { return true }

func (r *uniqueValueRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "case_sensitive", Type: ParamCheckbox, Label: "Case sensitive", Default: "true"},
	}
}

func (r *uniqueValueRule) DisplayName(params map[string]string) string {
	if !paramBool(params, "case_sensitive", true) {
		return r.Name() + " (case insensitive)"
	}
	return r.Name()
}

// Validate is the row-mode fallback; a single value is always unique.
func (r *uniqueValueRule) Validate(value string, params map[string]string) Outcome {
	return Pass()
}

func (r *uniqueValueRule) ValidateColumn(values []string, params map[string]string) []Outcome {
	caseSensitive := paramBool(params, "case_sensitive", true)

	keys := make([]string, len(values))
	counts := make(map[string]int, len(values))
	for i, v := range values {
		key := strings.TrimSpace(v)
		if key == "" {
			continue
		}
		if !caseSensitive {
			key = strings.ToLower(key)
		}
		keys[i] = key
		counts[key]++
	}

	outcomes := make([]Outcome, len(values))
	for i := range values {
		if keys[i] != "" && counts[keys[i]] > 1 {
			outcomes[i] = Fail("value is not unique in this column")
		} else {
			outcomes[i] = Pass()
		}
	}
	return outcomes
}
