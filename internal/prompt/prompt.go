// Package prompt manages the current base style prompt used for image
// generation. The prompt lives in a single flat file so that it survives
// restarts and can be shared across processes, with a built-in default
// when no file exists yet.
package prompt

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultBasePrompt is the style applied when no prompt has been configured.
const DefaultBasePrompt = "Dark cinematic realism in a golden-age-of-piracy setting; wooden ships with sails and cannons; sea haze, contrast, rim light; palette: steel and lead water, emerald, moss, wet wood, bronze patina, amber highlights; textures: salt on ropes, stone, torn canvas, spray; wide shot, sense of scale, no close-up faces"

// Store is the single source of truth for the current base prompt.
type Store struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger
}

// NewStore creates a base prompt store backed by the file at path.
// If the file does not exist it is created with the default prompt.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("base prompt path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:   path,
		logger: logger.With("component", "prompt_store"),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write(DefaultBasePrompt); err != nil {
			return nil, fmt.Errorf("failed to seed base prompt file: %w", err)
		}
		s.logger.Info("Base prompt file created with default prompt", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat base prompt file: %w", err)
	}

	return s, nil
}

// Current returns the current base prompt. Falls back to the default if the
// file is unreadable or empty, so generation never runs without a style.
func (s *Store) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Error("Failed to read base prompt file, using default", "path", s.path, "error", err)
		return DefaultBasePrompt
	}

	current := strings.TrimSpace(string(data))
	if current == "" {
		return DefaultBasePrompt
	}
	return current
}

// Update replaces the current base prompt.
func (s *Store) Update(newPrompt string) error {
	newPrompt = strings.TrimSpace(newPrompt)
	if newPrompt == "" {
		return fmt.Errorf("base prompt cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(newPrompt); err != nil {
		return fmt.Errorf("failed to update base prompt: %w", err)
	}

	s.logger.Info("Base prompt updated", "length", len(newPrompt))
	return nil
}

func (s *Store) write(prompt string) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create prompt directory: %w", err)
		}
	}
	return os.WriteFile(s.path, []byte(prompt), 0o644)
}
