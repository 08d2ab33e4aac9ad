// Package nodeschema implements the local-first node-schema knowledge store
// (spec §4.3): a JSON snapshot loaded at process start, consulted for every
// schema lookup, with the platform API called only on a targeted miss.
package nodeschema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

type (
	// Anchor describes one input connection point on a node schema.
	Anchor struct {
		Name          string   `json:"name"`
		AcceptedTypes []string `json:"accepted_types"`
		Optional      bool     `json:"optional"`
	}

	// OutputAnchor describes one output connection point. Type may be a
	// pipe-joined disjunction ("string|number") per spec §3.
	OutputAnchor struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	// Param describes one configurable input parameter on a node schema.
	Param struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Optional bool   `json:"optional"`
		Default  any    `json:"default,omitempty"`
	}

	// Schema is one platform node type (spec §3 "Node schema"). Hash changes
	// iff any observable field changes; Name is unique within the store.
	Schema struct {
		Name          string         `json:"name"`
		Version       string         `json:"version"`
		Label         string         `json:"label"`
		BaseClasses   []string       `json:"base_classes"`
		InputAnchors  []Anchor       `json:"input_anchors"`
		InputParams   []Param        `json:"input_params"`
		OutputAnchors []OutputAnchor `json:"output_anchors"`
		Credential    *CredentialDecl `json:"credential,omitempty"`
		Hash          string         `json:"hash"`
	}

	// CredentialDecl declares the credential type a schema requires, if any.
	CredentialDecl struct {
		Type string `json:"type"`
	}

	// Fetcher is the narrow platform-API contract the store falls back to on
	// a targeted miss. Implementations live in internal/platform.
	Fetcher interface {
		FetchNodeSchema(ctx context.Context, name string) (Schema, error)
	}

	// Store is the local-first NodeSchemaStore (spec §4.3). Get is O(1);
	// GetOrRepair additionally consults the platform API on miss, gated by
	// RepairBudget and a per-node-type lock so concurrent misses across
	// goroutines collapse into one fetch.
	Store struct {
		fetcher Fetcher

		mu         sync.RWMutex
		schemas    map[string]Schema
		callCounts map[string]int

		locksMu sync.Mutex
		locks   map[string]*sync.Mutex

		// RepairBudget bounds API fetches per patch iteration (default 10,
		// spec §4.3); caller resets it at the start of each iteration via
		// ResetRepairBudget.
		repairBudget  int
		repairsIssued int
		repairMu      sync.Mutex
	}
)

// DefaultRepairBudget is the configured default for schema repairs per patch
// iteration (spec §4.3).
const DefaultRepairBudget = 10

// ErrRepairBudgetExhausted is returned by GetOrRepair when a miss cannot be
// repaired because the iteration's repair budget is spent.
var ErrRepairBudgetExhausted = errors.New("nodeschema: repair budget exhausted")

// New constructs a Store from a snapshot, ready to serve Get/GetOrRepair.
// fetcher may be nil, in which case GetOrRepair returns ErrRepairBudgetExhausted-free
// misses as "not found" without attempting a live fetch (useful for CREATE-mode
// tests with no platform API).
func New(snapshot []Schema, fetcher Fetcher) *Store {
	s := &Store{
		fetcher:      fetcher,
		schemas:      make(map[string]Schema, len(snapshot)),
		callCounts:   make(map[string]int),
		locks:        make(map[string]*sync.Mutex),
		repairBudget: DefaultRepairBudget,
	}
	for _, sc := range snapshot {
		s.schemas[sc.Name] = sc
	}
	return s
}

// Get returns the schema for name, O(1), and whether it was present.
func (s *Store) Get(name string) (Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schemas[name]
	return sc, ok
}

// ResetRepairBudget is called at the start of each patch iteration.
func (s *Store) ResetRepairBudget(budget int) {
	if budget <= 0 {
		budget = DefaultRepairBudget
	}
	s.repairMu.Lock()
	defer s.repairMu.Unlock()
	s.repairBudget = budget
	s.repairsIssued = 0
}

// RepairsIssued reports how many API fetches GetOrRepair has issued since
// the last ResetRepairBudget call.
func (s *Store) RepairsIssued() int {
	s.repairMu.Lock()
	defer s.repairMu.Unlock()
	return s.repairsIssued
}

// GetOrRepair returns the schema for name, incrementing its call count. On a
// local miss it issues a single targeted API fetch (if a Fetcher is
// configured and the repair budget allows), normalizes the response, hashes
// it, and inserts it into the local snapshot.
//
// Concurrent misses for the same name collapse into one fetch via a
// per-node-type lock (spec §5 shared-resource policy).
func (s *Store) GetOrRepair(ctx context.Context, name string) (Schema, error) {
	s.mu.Lock()
	s.callCounts[name]++
	s.mu.Unlock()

	if sc, ok := s.Get(name); ok {
		return sc, nil
	}

	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	// Re-check: another goroutine may have repaired it while we waited.
	if sc, ok := s.Get(name); ok {
		return sc, nil
	}

	if s.fetcher == nil {
		return Schema{}, errors.New("nodeschema: " + name + " not found and no fetcher configured")
	}

	s.repairMu.Lock()
	if s.repairsIssued >= s.repairBudget {
		s.repairMu.Unlock()
		return Schema{}, ErrRepairBudgetExhausted
	}
	s.repairsIssued++
	s.repairMu.Unlock()

	fetched, err := s.fetcher.FetchNodeSchema(ctx, name)
	if err != nil {
		return Schema{}, err
	}
	fetched.Hash = ContentHash(fetched)

	s.mu.Lock()
	s.schemas[fetched.Name] = fetched
	s.mu.Unlock()
	return fetched, nil
}

func (s *Store) lockFor(name string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// ContentHash computes the canonical content hash of a schema: observable
// fields encoded as sorted-key JSON, hashed with SHA-256. Two schemas with
// identical observable fields always hash identically, independent of the
// order of base classes, anchors and params supplied by a caller:
// ContentHash sorts them by name before encoding.
func ContentHash(sc Schema) string {
	type canonical struct {
		Name          string         `json:"name"`
		Version       string         `json:"version"`
		Label         string         `json:"label"`
		BaseClasses   []string       `json:"base_classes"`
		InputAnchors  []Anchor       `json:"input_anchors"`
		InputParams   []Param        `json:"input_params"`
		OutputAnchors []OutputAnchor `json:"output_anchors"`
		Credential    *CredentialDecl `json:"credential,omitempty"`
	}
	c := canonical{
		Name: sc.Name, Version: sc.Version, Label: sc.Label,
		BaseClasses: append([]string(nil), sc.BaseClasses...),
		InputAnchors: append([]Anchor(nil), sc.InputAnchors...),
		InputParams: append([]Param(nil), sc.InputParams...),
		OutputAnchors: append([]OutputAnchor(nil), sc.OutputAnchors...),
		Credential: sc.Credential,
	}
	sort.Slice(c.BaseClasses, func(i, j int) bool { return c.BaseClasses[i] < c.BaseClasses[j] })
	sort.Slice(c.InputAnchors, func(i, j int) bool { return c.InputAnchors[i].Name < c.InputAnchors[j].Name })
	sort.Slice(c.InputParams, func(i, j int) bool { return c.InputParams[i].Name < c.InputParams[j].Name })
	sort.Slice(c.OutputAnchors, func(i, j int) bool { return c.OutputAnchors[i].Name < c.OutputAnchors[j].Name })
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Refresh re-fetches name from the platform API regardless of whether it is
// already cached, and applies the four-case gating matrix (Gate) to decide
// whether the fetched copy replaces the local one. No graph node calls it.
func (s *Store) Refresh(ctx context.Context, name string) (RepairDecision, error) {
	if s.fetcher == nil {
		return "", errors.New("nodeschema: refresh requires a fetcher")
	}
	local, _ := s.Get(name)
	remote, err := s.fetcher.FetchNodeSchema(ctx, name)
	if err != nil {
		return "", err
	}
	remote.Hash = ContentHash(remote)
	decision := Gate(local, remote)
	if decision.ShouldWrite() {
		s.mu.Lock()
		s.schemas[remote.Name] = remote
		s.mu.Unlock()
	}
	return decision, nil
}

// Fingerprint hashes the full catalogue of schema hashes in a canonical
// (sorted-by-name) order, so repeated calls against an unchanged store
// always agree. A fingerprint change between successive iterations
// constitutes drift (spec §4.3).
func (s *Store) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.schemas))
	for n := range s.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, n := range names {
		h.Write([]byte(n))
		h.Write([]byte(s.schemas[n].Hash))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Len reports the number of schemas currently in the local snapshot, used by
// hydrate_context to populate facts.node_count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.schemas)
}

// Names returns the sorted list of node type names currently in the local
// snapshot, used to build the plan node's available-node-types catalogue
// without exposing the full Schema bodies to the prompt.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.schemas))
	for n := range s.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
