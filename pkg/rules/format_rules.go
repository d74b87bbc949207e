package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type isNumberRule struct{}

func (r *isNumberRule) ID() string   { return "is_number" }
func (r *isNumberRule) Name() string { return "Numeric value" }
func (r *isNumberRule) Description() string {
	return "Checks that the value is an integer or a decimal number."
}
func (r *isNumberRule) Mode() Mode         { return RowMode }
func (r *isNumberRule) Configurable() bool { return true }

func (r *isNumberRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "number_type", Type: ParamSelect, Label: "Number type", Default: "any", Options: []Option{
			{Value: "any", Label: "Any (integer or decimal)"},
			{Value: "integer", Label: "Integer only"},
			{Value: "float", Label: "Decimal only"},
		}},
	}
}

func (r *isNumberRule) DisplayName(params map[string]string) string {
	switch params["number_type"] {
	case "integer":
		return "Integer value"
	case "float":
		return "Decimal value"
	}
	return r.Name()
}

func (r *isNumberRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Pass()
	}

	trimmed := strings.TrimSpace(value)
	num, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Fail(fmt.Sprintf("value %q is not a number", trimmed))
	}

	switch params["number_type"] {
	case "integer":
		if num != math.Trunc(num) {
			return Fail(fmt.Sprintf("value %q is not an integer", trimmed))
		}
	case "float":
		// "123.0" counts as a decimal when written with a point.
		if num == math.Trunc(num) && !strings.Contains(trimmed, ".") {
			return Fail(fmt.Sprintf("value %q is not a decimal number", trimmed))
		}
	}
	return Pass()
}

type regexCheckRule struct{}

func (r *regexCheckRule) ID() string   { return "regex_check" }
func (r *regexCheckRule) Name() string { return "Regular expression" }
func (r *regexCheckRule) Description() string {
	return "Checks the value against a regular expression. Useful for complex format checks such as article numbers or codes."
}
func (r *regexCheckRule) Mode() Mode         { return RowMode }
func (r *regexCheckRule) Configurable() bool { return true }

func (r *regexCheckRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "pattern", Type: ParamText, Label: "Regular expression", Required: true},
		{Name: "mode", Type: ParamSelect, Label: "Check mode", Default: "matches", Options: []Option{
			{Value: "matches", Label: "Error when NO match is found"},
			{Value: "not_matches", Label: "Error when a match is found"},
		}},
	}
}

func (r *regexCheckRule) DisplayName(params map[string]string) string {
	pattern := params["pattern"]
	if pattern == "" {
		return r.Name()
	}
	modeText := "must match"
	if params["mode"] == "not_matches" {
		modeText = "must not match"
	}
	if len(pattern) > 20 {
		pattern = pattern[:20] + "..."
	}
	return fmt.Sprintf("Regex %q (%s)", pattern, modeText)
}

func (r *regexCheckRule) Validate(value string, params map[string]string) Outcome {
	pattern := params["pattern"]
	if pattern == "" {
		return Pass()
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return Fail(fmt.Sprintf("invalid regular expression %q: %v", pattern, err))
	}
	found := re.MatchString(value)

	switch params["mode"] {
	case "not_matches":
		if found {
			return Fail(fmt.Sprintf("value matches forbidden pattern %q", pattern))
		}
	default: // matches
		if !found {
			return Fail(fmt.Sprintf("value does not match pattern %q", pattern))
		}
	}
	return Pass()
}

type dateFormatCheckRule struct{}

func (r *dateFormatCheckRule) ID() string   { return "date_format_check" }
func (r *dateFormatCheckRule) Name() string { return "Date format" }
func (r *dateFormatCheckRule) Description() string {
	return "Checks that the value matches the given date layout, written with the reference time 2006-01-02 15:04:05."
}
func (r *dateFormatCheckRule) Mode() Mode         { return RowMode }
func (r *dateFormatCheckRule) Configurable() bool { return true }

func (r *dateFormatCheckRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "date_format", Type: ParamText, Label: "Date layout", Default: "2006-01-02", Placeholder: "2006-01-02 15:04:05"},
	}
}

func (r *dateFormatCheckRule) DisplayName(params map[string]string) string {
	if layout := params["date_format"]; layout != "" {
		return fmt.Sprintf("%s (%s)", r.Name(), layout)
	}
	return r.Name()
}

func (r *dateFormatCheckRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Pass()
	}

	layout := params["date_format"]
	if layout == "" {
		return Fail("no date layout configured for this rule")
	}
	if _, err := time.Parse(layout, strings.TrimSpace(value)); err != nil {
		return Fail(fmt.Sprintf("date %q does not match layout %q", value, layout))
	}
	return Pass()
}
