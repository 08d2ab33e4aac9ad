// Package inmem implements checkpoint.Store entirely in memory, for tests
// and single-process demo deployments. Grounded on the mutex-guarded-map,
// deep-copy-on-read/write pattern used throughout the teacher's in-memory
// session store.
package inmem

import (
	"context"
	"sync"

	"github.com/flowcraft/chatagent/internal/checkpoint"
	"github.com/flowcraft/chatagent/internal/state"
)

// Store is a thread-safe, process-local checkpoint.Store.
type Store struct {
	mu   sync.RWMutex
	byID map[string]state.Snapshot
}

// New constructs an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]state.Snapshot)}
}

// Save stores a deep copy of snap, keyed by its SessionID.
func (s *Store) Save(_ context.Context, snap state.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[snap.SessionID] = cloneSnapshot(snap)
	return nil
}

// Load returns a deep copy of the latest checkpoint for sessionID.
func (s *Store) Load(_ context.Context, sessionID string) (state.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byID[sessionID]
	if !ok {
		return state.Snapshot{}, checkpoint.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

// Delete removes sessionID's checkpoint, if any.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, sessionID)
	return nil
}

// Len reports the number of sessions currently checkpointed, for tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneSnapshot(snap state.Snapshot) state.Snapshot {
	out := snap
	out.Messages = append([]state.Message(nil), snap.Messages...)
	out.Facts = cloneNested(snap.Facts)
	out.Artifacts = cloneNested(snap.Artifacts)
	out.Debug = cloneNested(snap.Debug)
	return out
}

func cloneNested(m map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for domain, bucket := range m {
		inner := make(map[string]any, len(bucket))
		for k, v := range bucket {
			inner[k] = v
		}
		out[domain] = inner
	}
	return out
}
