// Package credential implements the local-first credential knowledge store
// (spec §3): a snapshot of platform credentials indexed by both id and
// type, with a targeted repair fetch on miss mirroring internal/knowledge/nodeschema.
package credential

import (
	"context"
	"errors"
	"sync"
)

type (
	// Credential is one platform credential reference (spec §3). The
	// secret material itself never enters this store; only the id/name/type
	// triple needed to bind a node does.
	Credential struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	}

	// Fetcher is the platform-API fallback used on a targeted miss.
	Fetcher interface {
		FetchCredential(ctx context.Context, id string) (Credential, error)
	}

	// Store indexes credentials by id and by type for resolve_or_repair and
	// "list credentials of type X" lookups respectively.
	Store struct {
		fetcher Fetcher

		mu      sync.RWMutex
		byID    map[string]Credential
		byType  map[string][]string // type -> []id, insertion order preserved
	}
)

// New constructs a Store from a snapshot. fetcher may be nil (CREATE-mode
// tests with no platform API): misses then resolve as "not found" rather
// than attempting a live fetch.
func New(snapshot []Credential, fetcher Fetcher) *Store {
	s := &Store{
		fetcher: fetcher,
		byID:    make(map[string]Credential, len(snapshot)),
		byType:  make(map[string][]string),
	}
	for _, c := range snapshot {
		s.index(c)
	}
	return s
}

func (s *Store) index(c Credential) {
	s.byID[c.ID] = c
	for _, id := range s.byType[c.Type] {
		if id == c.ID {
			return
		}
	}
	s.byType[c.Type] = append(s.byType[c.Type], c.ID)
}

// Get returns the credential for id, O(1).
func (s *Store) Get(id string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

// Resolve implements patchir.CredentialResolver: it reports the credential's
// type if id is known locally. It never issues a repair fetch, since
// Compile's final validation pass must stay synchronous and side-effect
// free; callers needing repair should call ResolveOrRepair ahead of Compile.
func (s *Store) Resolve(_ context.Context, id string) (string, bool) {
	c, ok := s.Get(id)
	if !ok {
		return "", false
	}
	return c.Type, true
}

// ListByType returns the ids of all known credentials of the given type, in
// snapshot/registration order.
func (s *Store) ListByType(credType string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byType[credType]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// ResolveOrRepair returns the credential for id, issuing one targeted
// platform-API fetch on a local miss (spec §4.3's repair pattern, applied
// to credentials). Calling it ahead of Compile warms the cache that
// Compile's own Resolve call reads; no graph node calls it.
func (s *Store) ResolveOrRepair(ctx context.Context, id string) (Credential, error) {
	if c, ok := s.Get(id); ok {
		return c, nil
	}
	if s.fetcher == nil {
		return Credential{}, errors.New("credential: " + id + " not found and no fetcher configured")
	}
	fetched, err := s.fetcher.FetchCredential(ctx, id)
	if err != nil {
		return Credential{}, err
	}
	s.mu.Lock()
	s.index(fetched)
	s.mu.Unlock()
	return fetched, nil
}

// Len reports the number of credentials currently in the local snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
