package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const defaultStorePath = "members.json"

// ErrCorruptRegistry reports an unreadable member registry file.
//
// Corrupt files are surfaced instead of silently replaced so the operator
// keeps the evidence.
var ErrCorruptRegistry = errors.New("roster: corrupt member registry")

// Store persists per-chat member handles in one JSON file.
//
// The file holds a single map of chat ID to username list. Entries are
// append-only: handles keep insertion order and are never removed.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a member store backed by the given file path.
func NewStore(path string) *Store {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = defaultStorePath
	}

	return &Store{path: trimmed}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the full registry. A missing file yields an empty registry.
func (s *Store) Load() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

// Members returns the stored handles for one chat in insertion order.
func (s *Store) Members(chatID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	return append([]string(nil), registry[chatID]...), nil
}

// Add appends one handle to a chat roster if it is not already present.
//
// The registry is rewritten only when something was appended.
func (s *Store) Add(chatID string, username string) (bool, error) {
	if chatID == "" {
		return false, fmt.Errorf("add member: empty chat id")
	}
	if username == "" {
		return false, fmt.Errorf("add member: empty username")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.loadLocked()
	if err != nil {
		return false, err
	}

	if containsFold(registry[chatID], username) {
		return false, nil
	}

	registry[chatID] = append(registry[chatID], username)
	if err := s.saveLocked(registry); err != nil {
		return false, err
	}

	return true, nil
}

// Rename carries a chat roster over to a new chat ID, merging with any
// handles already stored under the target.
func (s *Store) Rename(fromChatID string, toChatID string) (bool, error) {
	if fromChatID == "" || toChatID == "" {
		return false, fmt.Errorf("rename roster: empty chat id")
	}
	if fromChatID == toChatID {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	registry, err := s.loadLocked()
	if err != nil {
		return false, err
	}

	source, ok := registry[fromChatID]
	if !ok {
		return false, nil
	}

	merged := registry[toChatID]
	for _, username := range source {
		if containsFold(merged, username) {
			continue
		}
		merged = append(merged, username)
	}
	registry[toChatID] = merged
	delete(registry, fromChatID)

	if err := s.saveLocked(registry); err != nil {
		return false, err
	}

	return true, nil
}

func (s *Store) loadLocked() (map[string][]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string][]string), nil
		}

		return nil, fmt.Errorf("load member registry %s: %w", s.path, err)
	}

	registry := make(map[string][]string)
	if err := json.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("load member registry %s: %w: %w", s.path, ErrCorruptRegistry, err)
	}

	return registry, nil
}

func (s *Store) saveLocked(registry map[string][]string) error {
	encoded, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode member registry: %w", err)
	}

	storeDir := filepath.Dir(s.path)
	if storeDir != "." {
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			return fmt.Errorf("create registry directory %s: %w", storeDir, err)
		}
	}

	if err := os.WriteFile(s.path, encoded, 0o644); err != nil {
		return fmt.Errorf("write member registry %s: %w", s.path, err)
	}

	return nil
}

func containsFold(handles []string, username string) bool {
	for _, handle := range handles {
		if strings.EqualFold(handle, username) {
			return true
		}
	}

	return false
}
