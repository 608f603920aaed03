package casestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for single-process deployments and
// tests. Safe for concurrent use; all reads return copies.
type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string]*Case
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]*Case)}
}

// Put stores the case. A second Put for the same id is a no-op, matching the
// durable implementation's idempotent insert.
func (s *MemoryStore) Put(_ context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.CaseID]; exists {
		return nil
	}
	cp := *c
	cp.Risks = append([]string(nil), c.Risks...)
	s.cases[c.CaseID] = &cp
	return nil
}

// Get returns a copy of the case or ErrCaseNotFound.
func (s *MemoryStore) Get(_ context.Context, caseID string) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cp := *c
	cp.Risks = append([]string(nil), c.Risks...)
	return &cp, nil
}

// UpdateLevel raises the case's alert level. Lowering is rejected with
// ErrLevelRegression.
func (s *MemoryStore) UpdateLevel(_ context.Context, caseID, level string, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return ErrCaseNotFound
	}
	if rank < c.LevelRank {
		return ErrLevelRegression
	}
	c.AlertLevel = level
	c.LevelRank = rank
	return nil
}

// MarkResolved flips the case to resolved. Resolving an already-resolved
// case is a no-op.
func (s *MemoryStore) MarkResolved(_ context.Context, caseID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return ErrCaseNotFound
	}
	if c.Resolved {
		return nil
	}
	c.Resolved = true
	t := at
	c.ResolvedAt = &t
	return nil
}
