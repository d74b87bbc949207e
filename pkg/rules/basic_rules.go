package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// notEmptyRule fails on empty or whitespace-only cells. Most other rules
// treat blank cells as valid; emptiness checking is this rule's job alone.
type notEmptyRule struct{}

func (r *notEmptyRule) ID() string          { return "not_empty" }
func (r *notEmptyRule) Name() string        { return "Must not be empty" }
func (r *notEmptyRule) Description() string { return "Checks that the cell is not empty." }
func (r *notEmptyRule) Mode() Mode          { return RowMode }
func (r *notEmptyRule) Configurable() bool  { return false }
func (r *notEmptyRule) Params() []ParamSpec { return nil }

func (r *notEmptyRule) DisplayName(params map[string]string) string { return r.Name() }

func (r *notEmptyRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Fail("value is empty")
	}
	return Pass()
}

type lengthCheckRule struct{}

func (r *lengthCheckRule) ID() string   { return "length_check" }
func (r *lengthCheckRule) Name() string { return "String length" }
func (r *lengthCheckRule) Description() string {
	return "Checks that the value length is within the configured range."
}
func (r *lengthCheckRule) Mode() Mode         { return RowMode }
func (r *lengthCheckRule) Configurable() bool { return true }

func (r *lengthCheckRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "min_length", Type: ParamText, Label: "Minimum length (inclusive)", Default: "0"},
		{Name: "max_length", Type: ParamText, Label: "Maximum length (inclusive)"},
	}
}

func (r *lengthCheckRule) DisplayName(params map[string]string) string {
	min, hasMin := params["min_length"]
	max, hasMax := params["max_length"]
	hasMin = hasMin && strings.TrimSpace(min) != ""
	hasMax = hasMax && strings.TrimSpace(max) != ""
	switch {
	case hasMin && hasMax:
		return fmt.Sprintf("Length between %s and %s", min, max)
	case hasMin:
		return fmt.Sprintf("Length at least %s", min)
	case hasMax:
		return fmt.Sprintf("Length at most %s", max)
	}
	return r.Name()
}

func (r *lengthCheckRule) Validate(value string, params map[string]string) Outcome {
	if len(params) == 0 {
		return Pass()
	}
	// Blank cells count as zero-length strings.
	length := len([]rune(value))

	// Non-numeric bounds are ignored, matching the original's leniency.
	if min := paramInt(params, "min_length", -1); min >= 0 && length < min {
		return Fail(fmt.Sprintf("length %d is below the minimum of %d", length, min))
	}
	if max := paramInt(params, "max_length", -1); max >= 0 && length > max {
		return Fail(fmt.Sprintf("length %d is above the maximum of %d", length, max))
	}
	return Pass()
}

type digitsOnlyRule struct{}

func (r *digitsOnlyRule) ID() string          { return "digits_only" }
func (r *digitsOnlyRule) Name() string        { return "Digits only" }
func (r *digitsOnlyRule) Description() string { return "Checks that the value consists of digits only." }
func (r *digitsOnlyRule) Mode() Mode          { return RowMode }
func (r *digitsOnlyRule) Configurable() bool  { return false }
func (r *digitsOnlyRule) Params() []ParamSpec { return nil }

func (r *digitsOnlyRule) DisplayName(params map[string]string) string { return r.Name() }

func (r *digitsOnlyRule) Validate(value string, params map[string]string) Outcome {
	if value == "" {
		return Pass()
	}
	for _, c := range value {
		if !unicode.IsDigit(c) {
			return Fail(fmt.Sprintf("character %q is not a digit", c))
		}
	}
	return Pass()
}

type containsDigitRule struct{}

func (r *containsDigitRule) ID() string   { return "contains_digit" }
func (r *containsDigitRule) Name() string { return "Contains a digit" }
func (r *containsDigitRule) Description() string {
	return "Checks that the value contains at least one digit."
}
func (r *containsDigitRule) Mode() Mode          { return RowMode }
func (r *containsDigitRule) Configurable() bool  { return false }
func (r *containsDigitRule) Params() []ParamSpec { return nil }

func (r *containsDigitRule) DisplayName(params map[string]string) string { return r.Name() }

func (r *containsDigitRule) Validate(value string, params map[string]string) Outcome {
	// An empty cell contains no digits, so it fails.
	if strings.IndexFunc(value, unicode.IsDigit) < 0 {
		return Fail("value contains no digits")
	}
	return Pass()
}

type containsLetterRule struct{}

func (r *containsLetterRule) ID() string   { return "contains_letter" }
func (r *containsLetterRule) Name() string { return "Contains a letter" }
func (r *containsLetterRule) Description() string {
	return "Checks that the value contains at least one letter."
}
func (r *containsLetterRule) Mode() Mode         { return RowMode }
func (r *containsLetterRule) Configurable() bool { return true }

func (r *containsLetterRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "allow_empty", Type: ParamCheckbox, Label: "Allow empty values", Default: "true"},
	}
}

func (r *containsLetterRule) DisplayName(params map[string]string) string {
	if !paramBool(params, "allow_empty", true) {
		return r.Name() + " (mandatory)"
	}
	return r.Name()
}

func (r *containsLetterRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		if paramBool(params, "allow_empty", true) {
			return Pass()
		}
		return Fail("value is empty")
	}
	if strings.IndexFunc(value, unicode.IsLetter) < 0 {
		return Fail("value contains no letters")
	}
	return Pass()
}

type startsWithCapitalRule struct{}

func (r *startsWithCapitalRule) ID() string   { return "starts_with_capital" }
func (r *startsWithCapitalRule) Name() string { return "Starts with a capital" }
func (r *startsWithCapitalRule) Description() string {
	return "Checks that the value starts with a capital letter or a digit, ignoring leading punctuation."
}
func (r *startsWithCapitalRule) Mode() Mode          { return RowMode }
func (r *startsWithCapitalRule) Configurable() bool  { return false }
func (r *startsWithCapitalRule) Params() []ParamSpec { return nil }

func (r *startsWithCapitalRule) DisplayName(params map[string]string) string { return r.Name() }

func (r *startsWithCapitalRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Pass()
	}
	for _, c := range value {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			continue
		}
		if unicode.IsUpper(c) || unicode.IsDigit(c) {
			return Pass()
		}
		return Fail("value must start with a capital letter or a digit")
	}
	// Only punctuation and spaces; nothing to judge.
	return Pass()
}

type noLeadingTrailingSpacesRule struct{}

func (r *noLeadingTrailingSpacesRule) ID() string   { return "no_leading_trailing_spaces" }
func (r *noLeadingTrailingSpacesRule) Name() string { return "No surrounding spaces" }
func (r *noLeadingTrailingSpacesRule) Description() string {
	return "Checks that the value has no leading or trailing whitespace."
}
func (r *noLeadingTrailingSpacesRule) Mode() Mode          { return RowMode }
func (r *noLeadingTrailingSpacesRule) Configurable() bool  { return false }
func (r *noLeadingTrailingSpacesRule) Params() []ParamSpec { return nil }

func (r *noLeadingTrailingSpacesRule) DisplayName(params map[string]string) string { return r.Name() }

func (r *noLeadingTrailingSpacesRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Pass()
	}
	trimmed := strings.TrimSpace(value)
	if value == trimmed {
		return Pass()
	}
	leading := value != strings.TrimLeft(value, " \t")
	trailing := value != strings.TrimRight(value, " \t")
	switch {
	case leading && trailing:
		return Fail("value has leading and trailing spaces")
	case leading:
		return Fail("value has leading spaces")
	default:
		return Fail("value has trailing spaces")
	}
}

type noSpecialCharsRule struct{}

func (r *noSpecialCharsRule) ID() string   { return "no_special_chars" }
func (r *noSpecialCharsRule) Name() string { return "No special characters" }
func (r *noSpecialCharsRule) Description() string {
	return "Checks that the value contains no special characters beyond the allowed set."
}
func (r *noSpecialCharsRule) Mode() Mode         { return RowMode }
func (r *noSpecialCharsRule) Configurable() bool { return true }

func (r *noSpecialCharsRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "allowed_chars", Type: ParamText, Label: "Allowed characters", Default: "-_.", Placeholder: "-_."},
	}
}

func (r *noSpecialCharsRule) DisplayName(params map[string]string) string {
	if allowed := params["allowed_chars"]; allowed != "" {
		return fmt.Sprintf("%s (allowing %q)", r.Name(), allowed)
	}
	return r.Name()
}

func (r *noSpecialCharsRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Pass()
	}
	allowed := "-_."
	if v, ok := params["allowed_chars"]; ok {
		allowed = v
	}

	var bad []rune
	seen := make(map[rune]bool)
	for _, c := range value {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || unicode.IsSpace(c) {
			continue
		}
		if strings.ContainsRune(allowed, c) {
			continue
		}
		if !seen[c] {
			seen[c] = true
			bad = append(bad, c)
		}
	}
	if len(bad) == 0 {
		return Pass()
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i] < bad[j] })
	parts := make([]string, len(bad))
	for i, c := range bad {
		parts[i] = string(c)
	}
	return Fail("forbidden characters found: " + strings.Join(parts, ", "))
}

type inListCheckRule struct{}

func (r *inListCheckRule) ID() string   { return "in_list_check" }
func (r *inListCheckRule) Name() string { return "Value from list" }
func (r *inListCheckRule) Description() string {
	return "Checks that the value is one of the configured allowed values."
}
func (r *inListCheckRule) Mode() Mode         { return RowMode }
func (r *inListCheckRule) Configurable() bool { return true }

func (r *inListCheckRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "allowed_values", Type: ParamText, Label: "Allowed values (comma separated)", Placeholder: "value1, value2, value3", Required: true},
		{Name: "case_sensitive", Type: ParamCheckbox, Label: "Case sensitive", Default: "false"},
	}
}

func (r *inListCheckRule) DisplayName(params map[string]string) string {
	allowed := splitList(params["allowed_values"])
	if len(allowed) == 0 {
		return r.Name()
	}
	sample := allowed
	more := ""
	if len(sample) > 2 {
		sample = sample[:2]
		more = "..."
	}
	return fmt.Sprintf("%s ([%s%s])", r.Name(), strings.Join(sample, ", "), more)
}

func (r *inListCheckRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Pass()
	}
	allowed := splitList(params["allowed_values"])
	if len(allowed) == 0 {
		return Fail("no allowed values configured for this rule")
	}

	caseSensitive := paramBool(params, "case_sensitive", false)
	candidate := strings.TrimSpace(value)
	for _, item := range allowed {
		if caseSensitive && candidate == item {
			return Pass()
		}
		if !caseSensitive && strings.EqualFold(candidate, item) {
			return Pass()
		}
	}

	sample := allowed
	more := ""
	if len(sample) > 3 {
		sample = sample[:3]
		more = "..."
	}
	return Fail(fmt.Sprintf("value %q is not in the allowed list: %s%s", candidate, strings.Join(sample, ", "), more))
}

type substringCheckRule struct{}

func (r *substringCheckRule) ID() string   { return "substring_check" }
func (r *substringCheckRule) Name() string { return "Substring check" }
func (r *substringCheckRule) Description() string {
	return "Checks whether the cell contains or does not contain a given substring. Useful for stop words or mandatory fragments."
}
func (r *substringCheckRule) Mode() Mode         { return RowMode }
func (r *substringCheckRule) Configurable() bool { return true }

func (r *substringCheckRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "value", Type: ParamText, Label: "Substring to search for", Required: true},
		{Name: "mode", Type: ParamSelect, Label: "Check mode", Default: "contains", Options: []Option{
			{Value: "contains", Label: "Error when found (stop word)"},
			{Value: "not_contains", Label: "Error when NOT found (mandatory fragment)"},
		}},
		{Name: "case_sensitive", Type: ParamCheckbox, Label: "Case sensitive", Default: "false"},
	}
}

func (r *substringCheckRule) DisplayName(params map[string]string) string {
	sub := params["value"]
	if sub == "" {
		return r.Name()
	}
	modeText := "contains"
	if params["mode"] == "not_contains" {
		modeText = "does not contain"
	}
	caseText := ""
	if paramBool(params, "case_sensitive", false) {
		caseText = ", case sensitive"
	}
	return fmt.Sprintf("Substring %q (%s%s)", sub, modeText, caseText)
}

func (r *substringCheckRule) Validate(value string, params map[string]string) Outcome {
	sub := params["value"]
	if sub == "" {
		return Pass()
	}

	haystack, needle := value, sub
	if !paramBool(params, "case_sensitive", false) {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}
	found := strings.Contains(haystack, needle)

	switch params["mode"] {
	case "not_contains":
		if !found {
			return Fail(fmt.Sprintf("mandatory fragment %q not found", sub))
		}
	default: // contains
		if found {
			return Fail(fmt.Sprintf("stop word %q found", sub))
		}
	}
	return Pass()
}

// emailPattern matches the common practical email shape; it intentionally
// rejects the exotic corners of RFC 5322.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type isEmailRule struct{}

func (r *isEmailRule) ID() string          { return "is_email" }
func (r *isEmailRule) Name() string        { return "Email address" }
func (r *isEmailRule) Description() string { return "Checks that the value is a valid email address." }
func (r *isEmailRule) Mode() Mode          { return RowMode }
func (r *isEmailRule) Configurable() bool  { return false }
func (r *isEmailRule) Params() []ParamSpec { return nil }

func (r *isEmailRule) DisplayName(params map[string]string) string { return r.Name() }

func (r *isEmailRule) Validate(value string, params map[string]string) Outcome {
	if isBlank(value) {
		return Pass()
	}
	if !emailPattern.MatchString(strings.TrimSpace(value)) {
		return Fail("invalid email address format")
	}
	return Pass()
}

// splitList splits a comma-separated parameter value, trimming blanks.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
