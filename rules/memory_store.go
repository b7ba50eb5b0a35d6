package rules

import (
	"context"

	"go.uber.org/atomic"
)

// MemoryStore is an in-memory Store whose writer replaces the whole rule
// set atomically. Readers never observe a partially-written set.
type MemoryStore struct {
	rules atomic.Pointer[[]CaptureRule]
}

// NewMemoryStore creates a MemoryStore seeded with the given rules.
func NewMemoryStore(initial []CaptureRule) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(initial)
	return s
}

// Replace swaps in a new rule set as a single atomic pointer write.
func (s *MemoryStore) Replace(rules []CaptureRule) error {
	cp := make([]CaptureRule, len(rules))
	copy(cp, rules)
	s.rules.Store(&cp)
	return nil
}

// Snapshot returns the current rule set. The returned slice is never
// mutated after being published by Replace.
func (s *MemoryStore) Snapshot(_ context.Context) ([]CaptureRule, error) {
	ptr := s.rules.Load()
	if ptr == nil {
		return nil, nil
	}
	return *ptr, nil
}
