// Package inmem implements pattern.Store entirely in memory, for tests and
// single-process demo deployments, grounded on the mutex-guarded-map
// pattern used by internal/checkpoint/inmem.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowcraft/chatagent/internal/knowledge/pattern"
)

// Store is a thread-safe, process-local pattern.Store.
type Store struct {
	mu   sync.RWMutex
	byID map[string]pattern.Pattern
}

// New constructs an empty Store, optionally pre-seeded with patterns.
func New(seed ...pattern.Pattern) *Store {
	s := &Store{byID: make(map[string]pattern.Pattern, len(seed))}
	for _, p := range seed {
		s.byID[p.ID] = p
	}
	return s
}

// Get returns a copy of the pattern for id, or pattern.ErrNotFound.
func (s *Store) Get(_ context.Context, id string) (pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return pattern.Pattern{}, pattern.ErrNotFound
	}
	return p, nil
}

// Search returns every pattern matching filter's domain, category, and
// node-type overlap, most-recently-used first.
func (s *Store) Search(_ context.Context, filter pattern.Filter) ([]pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pattern.Pattern
	for _, p := range s.byID {
		if filter.Domain != "" && p.Domain != filter.Domain {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if !p.MatchesNodeTypes(filter.NodeTypes) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

// Save creates or overwrites a pattern, keyed by its ID.
func (s *Store) Save(_ context.Context, p pattern.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
	return nil
}

// RecordUse increments the pattern's success_count and bumps last_used_at.
func (s *Store) RecordUse(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return pattern.ErrNotFound
	}
	p.SuccessCount++
	p.LastUsedAt = usedAt
	s.byID[id] = p
	return nil
}
