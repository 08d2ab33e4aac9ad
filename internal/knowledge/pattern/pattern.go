// Package pattern implements the durable pattern library (spec §3/§9): "a
// persistently stored, reusable flow skeleton." Patterns are data, not
// code — ApplyAsBaseGraph never touches the platform API; it seeds a base patchir.FlowData a session's compile_patch_ir context is
// then built on top of. internal/knowledge/pattern/inmem and
// internal/knowledge/pattern/mongo provide the two implementations this
// repo ships, mirroring internal/checkpoint's Store/inmem/mongo split.
package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/flowcraft/chatagent/internal/patchir"
)

// ErrNotFound is returned by Get when no pattern exists for the given id.
var ErrNotFound = errors.New("pattern: not found")

type (
	// Pattern is one reusable flow skeleton (spec §3 "Pattern").
	Pattern struct {
		ID                string          `json:"id"`
		Name              string          `json:"name"`
		Domain            string          `json:"domain"`
		Category          string          `json:"category"`
		NodeTypes         []string        `json:"node_types"`
		SchemaFingerprint string          `json:"schema_fingerprint"`
		SuccessCount      int             `json:"success_count"`
		LastUsedAt        time.Time       `json:"last_used_at"`
		FlowData          json.RawMessage `json:"flow_data"`
	}

	// Filter selects patterns by domain, category, and node-type overlap
	// (spec §4.3 "filtered search by {domain, category, node_types
	// overlap}"). Zero-valued fields are wildcards.
	Filter struct {
		Domain    string
		Category  string
		NodeTypes []string
	}

	// Store is the durable pattern-library contract.
	Store interface {
		// Get returns one pattern by id, or ErrNotFound.
		Get(ctx context.Context, id string) (Pattern, error)
		// Search returns patterns matching filter, most-recently-used first.
		Search(ctx context.Context, filter Filter) ([]Pattern, error)
		// Save creates or overwrites a pattern, keyed by its ID.
		Save(ctx context.Context, p Pattern) error
		// RecordUse increments a pattern's success_count and bumps
		// last_used_at to usedAt, called after a session derived from this
		// pattern reaches evaluate's verdict=done.
		RecordUse(ctx context.Context, id string, usedAt time.Time) error
	}
)

// IsCompatible reports whether p may be used as a base graph against a
// knowledge store whose current node-schema fingerprint is
// currentFingerprint. Per spec §3: "A pattern is schema-compatible when its
// schema_fingerprint is empty or equal to the current knowledge-store
// fingerprint."
func (p Pattern) IsCompatible(currentFingerprint string) bool {
	return p.SchemaFingerprint == "" || p.SchemaFingerprint == currentFingerprint
}

// MatchesNodeTypes reports whether p.NodeTypes overlaps with want (spec's
// "node_types overlap" filter semantics); an empty want always matches.
func (p Pattern) MatchesNodeTypes(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(p.NodeTypes))
	for _, nt := range p.NodeTypes {
		have[nt] = struct{}{}
	}
	for _, w := range want {
		if _, ok := have[w]; ok {
			return true
		}
	}
	return false
}

// ErrNotCompatible is returned by ApplyAsBaseGraph when the requested
// pattern's schema_fingerprint does not match the caller's current
// fingerprint.
var ErrNotCompatible = errors.New("pattern: not schema-compatible")

// ApplyAsBaseGraph seeds a base patchir.FlowData from a pattern (spec §4.3
// "apply_as_base_graph(pattern_id) seeds a base Patch IR when the pattern is
// schema-compatible"), failing closed if the fingerprint check fails so a
// stale pattern can never silently seed an incompatible graph. This is a
// pure function over already-fetched data; callers look the pattern up via
// Store.Get first.
func ApplyAsBaseGraph(p Pattern, currentFingerprint string) (patchir.FlowData, error) {
	if !p.IsCompatible(currentFingerprint) {
		return patchir.FlowData{}, ErrNotCompatible
	}
	var flow patchir.FlowData
	if len(p.FlowData) == 0 {
		return flow, nil
	}
	if err := json.Unmarshal(p.FlowData, &flow); err != nil {
		return patchir.FlowData{}, err
	}
	return flow, nil
}
