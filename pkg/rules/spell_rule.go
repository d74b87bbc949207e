package rules

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

var wordPattern = regexp.MustCompile(`[a-zA-Zа-яА-ЯёЁ]+`)

// spellCheckRule checks every word of a cell against a dictionary: the
// shared file loaded at startup plus any words configured on the rule
// itself. A word missing from both is reported as a misspelling.
type spellCheckRule struct {
	logger   *zap.Logger
	dictPath string

	mu    sync.RWMutex
	words map[string]struct{}
}

func newSpellCheckRule(logger *zap.Logger, dictionaryPath string) *spellCheckRule {
	r := &spellCheckRule{
		logger:   logger.Named("spell_check"),
		dictPath: dictionaryPath,
		words:    map[string]struct{}{},
	}
	if err := r.Reload(); err != nil {
		r.logger.Warn("dictionary not loaded, spell checking will flag every word",
			zap.String("path", dictionaryPath),
			zap.Error(err))
	}
	return r
}

func (r *spellCheckRule) ID() string   { return "spell_check" }
func (r *spellCheckRule) Name() string { return "Spell check" }
func (r *spellCheckRule) Description() string {
	return "Checks the spelling of words against the project dictionary."
}
func (r *spellCheckRule) Mode() Mode         { return ColumnMode }
func (r *spellCheckRule) Configurable() bool { return true }

func (r *spellCheckRule) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "min_word_length", Type: ParamNumber, Label: "Minimum word length to check", Default: "4"},
		{Name: "custom_dictionary", Type: ParamText, Label: "Extra words (comma separated)", Placeholder: "term1, term2, term3"},
		{Name: "ignore_capitalized", Type: ParamCheckbox, Label: "Ignore capitalized words", Default: "true"},
	}
}

func (r *spellCheckRule) DisplayName(params map[string]string) string { return r.Name() }

// Reload re-reads the dictionary file, one word per line. Lines starting
// with # are comments.
func (r *spellCheckRule) Reload() error {
	f, err := os.Open(r.dictPath)
	if err != nil {
		return fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	words := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words[strings.ToLower(word)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dictionary: %w", err)
	}

	r.mu.Lock()
	r.words = words
	r.mu.Unlock()
	r.logger.Info("dictionary loaded", zap.String("path", r.dictPath), zap.Int("words", len(words)))
	return nil
}

func (r *spellCheckRule) Validate(value string, params map[string]string) Outcome {
	p := newSpellParams(params)
	return r.check(value, p, p.ignoreCapitalized)
}

func (r *spellCheckRule) ValidateColumn(values []string, params map[string]string) []Outcome {
	p := newSpellParams(params)
	outcomes := make([]Outcome, len(values))
	for i, v := range values {
		// The capitalized-word exemption never applies to the first row:
		// a capitalized value there is a header-like cell, not a sentence
		// start, so its spelling is still checked.
		outcomes[i] = r.check(v, p, p.ignoreCapitalized && i > 0)
	}
	return outcomes
}

type spellParams struct {
	minWordLength     int
	ignoreCapitalized bool
	extraWords        map[string]struct{}
}

func newSpellParams(params map[string]string) spellParams {
	p := spellParams{
		minWordLength:     paramInt(params, "min_word_length", 4),
		ignoreCapitalized: paramBool(params, "ignore_capitalized", true),
		extraWords:        map[string]struct{}{},
	}
	for _, w := range splitList(params["custom_dictionary"]) {
		p.extraWords[strings.ToLower(w)] = struct{}{}
	}
	return p
}

func (r *spellCheckRule) check(value string, p spellParams, skipCapitalized bool) Outcome {
	if isBlank(value) {
		return Pass()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var misspelled []string
	for _, word := range wordPattern.FindAllString(value, -1) {
		if len([]rune(word)) < p.minWordLength {
			continue
		}
		if skipCapitalized && startsUpper(word) {
			continue
		}
		lower := strings.ToLower(word)
		if _, ok := p.extraWords[lower]; ok {
			continue
		}
		if _, ok := r.words[lower]; ok {
			continue
		}
		misspelled = append(misspelled, word)
	}
	if len(misspelled) == 0 {
		return Pass()
	}
	return Fail("misspelled words: " + strings.Join(misspelled, ", "))
}

func startsUpper(word string) bool {
	for _, c := range word {
		return unicode.IsUpper(c)
	}
	return false
}
