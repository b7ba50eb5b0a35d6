package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/atomic"
)

// FileStore loads a JSON document of CaptureRule values from disk at
// construction, and again whenever Reload is called (wired to SIGHUP by
// the CLI).
type FileStore struct {
	path  string
	rules atomic.Pointer[[]CaptureRule]
}

// NewFileStore constructs a FileStore and performs the initial load.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, fmt.Errorf("loading rule file %s: %w", path, err)
	}
	return s, nil
}

// Reload re-reads the backing JSON file and atomically swaps in the parsed
// rule set. An error leaves the previously loaded rules in place.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading rule file: %w", err)
	}

	var parsed []CaptureRule
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parsing rule file: %w", err)
	}

	s.rules.Store(&parsed)
	return nil
}

// Replace persists rules to the backing file as JSON, then reloads from
// it so Snapshot reflects exactly what was written to disk.
func (s *FileStore) Replace(rules []CaptureRule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rule file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing rule file: %w", err)
	}
	return s.Reload()
}

// Snapshot returns the rule set loaded by the most recent successful Reload.
func (s *FileStore) Snapshot(_ context.Context) ([]CaptureRule, error) {
	ptr := s.rules.Load()
	if ptr == nil {
		return nil, nil
	}
	return *ptr, nil
}
