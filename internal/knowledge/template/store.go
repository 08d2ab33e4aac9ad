// Package template implements the local, keyword-indexed template catalogue
// (spec §4.3/§9): "local keyword-indexed template catalogue; used only on
// explicit search." Unlike internal/knowledge/nodeschema and
// internal/knowledge/credential there is no targeted API repair path —
// templates are a read-only local snapshot, consulted only when a node
// handler explicitly searches for one.
package template

import (
	"sort"
	"strings"
	"sync"
)

type (
	// Template is one catalogued flow-building-block description, taken
	// from the snapshot slice passed to New.
	Template struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
		NodeTypes   []string `json:"node_types"`
	}

	// Store is the in-memory keyword index over a Template snapshot.
	Store struct {
		mu        sync.RWMutex
		templates map[string]Template
		index     map[string][]string // keyword -> []template id
	}
)

// New builds a Store from a snapshot, indexing each template's Name words,
// Keywords, and NodeTypes for Search.
func New(snapshot []Template) *Store {
	s := &Store{
		templates: make(map[string]Template, len(snapshot)),
		index:     make(map[string][]string),
	}
	for _, t := range snapshot {
		s.templates[t.ID] = t
		for _, kw := range keywordsOf(t) {
			s.index[kw] = append(s.index[kw], t.ID)
		}
	}
	return s
}

// Get returns the template for id, and whether it was present.
func (s *Store) Get(id string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	return t, ok
}

// Search returns templates matching query, ranked by the count of distinct
// query keywords each template matched (descending), then by ID for a
// stable tie-break. An empty query matches nothing — spec §9 "used only on
// explicit search" means Search is never called as a fallback scan.
func (s *Store) Search(query string) []Template {
	words := splitWords(query)
	if len(words) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make(map[string]int)
	for _, w := range words {
		for _, id := range s.index[w] {
			hits[id]++
		}
	}
	if len(hits) == 0 {
		return nil
	}

	ids := make([]string, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if hits[ids[i]] != hits[ids[j]] {
			return hits[ids[i]] > hits[ids[j]]
		}
		return ids[i] < ids[j]
	})

	out := make([]Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.templates[id])
	}
	return out
}

func keywordsOf(t Template) []string {
	set := make(map[string]struct{})
	for _, w := range splitWords(t.Name) {
		set[w] = struct{}{}
	}
	for _, kw := range t.Keywords {
		set[strings.ToLower(kw)] = struct{}{}
	}
	for _, nt := range t.NodeTypes {
		set[strings.ToLower(nt)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

func splitWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
