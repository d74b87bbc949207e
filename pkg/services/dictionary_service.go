package services

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/dqengine/pkg/apperrors"
)

// RuleReloader refreshes validators backed by external resources. Satisfied
// by the rule registry.
type RuleReloader interface {
	Reload() error
}

// DictionaryService manages the word list behind the spell_check rule. The
// file is the single source of truth; every mutation rewrites it and reloads
// the registry so running validators pick the change up.
type DictionaryService interface {
	Words() ([]string, error)
	Add(word string) error
	Remove(word string) error
}

type dictionaryService struct {
	path     string
	registry RuleReloader
	logger   *zap.Logger

	mu sync.Mutex
}

// NewDictionaryService creates a new dictionary service.
func NewDictionaryService(path string, registry RuleReloader, logger *zap.Logger) DictionaryService {
	return &dictionaryService{
		path:     path,
		registry: registry,
		logger:   logger.Named("dictionary_service"),
	}
}

// Words returns the dictionary sorted alphabetically, comments skipped. A
// missing file reads as an empty dictionary.
func (s *dictionaryService) Words() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.read()
	if err != nil {
		return nil, err
	}
	sort.Strings(words)
	return words, nil
}

func (s *dictionaryService) Add(word string) error {
	word = normalizeWord(word)
	if word == "" {
		return fmt.Errorf("word must not be empty: %w", apperrors.ErrRuleConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.read()
	if err != nil {
		return err
	}
	for _, w := range words {
		if w == word {
			return apperrors.ErrConflict
		}
	}

	if err := s.write(append(words, word)); err != nil {
		return err
	}
	s.logger.Info("Added dictionary word", zap.String("word", word))
	return s.reload()
}

func (s *dictionaryService) Remove(word string) error {
	word = normalizeWord(word)

	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.read()
	if err != nil {
		return err
	}

	kept := words[:0]
	for _, w := range words {
		if w != word {
			kept = append(kept, w)
		}
	}
	if len(kept) == len(words) {
		return apperrors.ErrNotFound
	}

	if err := s.write(kept); err != nil {
		return err
	}
	s.logger.Info("Removed dictionary word", zap.String("word", word))
	return s.reload()
}

func (s *dictionaryService) read() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words = append(words, strings.ToLower(word))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return words, nil
}

func (s *dictionaryService) write(words []string) error {
	sort.Strings(words)
	content := strings.Join(words, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(s.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write dictionary: %w", err)
	}
	return nil
}

func (s *dictionaryService) reload() error {
	if err := s.registry.Reload(); err != nil {
		return fmt.Errorf("reload rules after dictionary change: %w", err)
	}
	return nil
}

func normalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// Ensure dictionaryService implements DictionaryService at compile time.
var _ DictionaryService = (*dictionaryService)(nil)
