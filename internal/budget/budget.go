// Package budget implements the per-phase token budgets and per-iteration
// retry/repair/ops ceilings that gate the staged graph (spec §4.7, §5):
// violations of the hard gates in preflight_validate_patch stop a patch
// from reaching apply_patch; token budget violations are counted but never
// abort a node.
package budget

import (
	"sync"

	"github.com/flowcraft/chatagent/internal/taxonomy"
	"github.com/flowcraft/chatagent/internal/toolregistry"
)

// Config holds the configured defaults (spec §4.7, §5). Every field may be
// overridden per deployment via internal/config.
type Config struct {
	// PerPhaseTokens maps a phase to its token budget; phases absent from
	// the map fall back to DefaultPhaseTokens.
	PerPhaseTokens map[toolregistry.Phase]int
	// DefaultPhaseTokens is used for any phase not present in PerPhaseTokens.
	DefaultPhaseTokens int
	// MaxSchemaRepairsPerIter bounds repair_schema's API fetches per
	// iteration (default 2, spec §4.5).
	MaxSchemaRepairsPerIter int
	// MaxTotalRetriesPerIter bounds the compile→validate→repair loop per
	// iteration.
	MaxTotalRetriesPerIter int
	// MaxPatchOpsPerIter bounds the size of a single iteration's Patch IR
	// op list.
	MaxPatchOpsPerIter int
	// IterationCeiling is the absolute cap on the plan→...→evaluate loop
	// before HITL_review is forced regardless of verdict (default 4; spec
	// §4.5 names 4, §9's worked examples observe 3 in one trace — see
	// DESIGN.md's Open Question resolution).
	IterationCeiling int
}

// DefaultConfig returns the spec's stated defaults (spec §4.5, §4.7).
func DefaultConfig() Config {
	return Config{
		PerPhaseTokens: map[toolregistry.Phase]int{
			toolregistry.PhaseDiscover: 15000,
			toolregistry.PhasePlan:     8000,
			toolregistry.PhasePatch:    20000,
			toolregistry.PhaseTest:     10000,
			toolregistry.PhaseEvaluate: 5000,
		},
		DefaultPhaseTokens:      25000,
		MaxSchemaRepairsPerIter: 2,
		MaxTotalRetriesPerIter:  3,
		MaxPatchOpsPerIter:      50,
		IterationCeiling:        4,
	}
}

func (c Config) tokenBudget(phase toolregistry.Phase) int {
	if v, ok := c.PerPhaseTokens[phase]; ok {
		return v
	}
	return c.DefaultPhaseTokens
}

// Tracker accumulates per-iteration counters for one session and evaluates
// them against Config's gates. A Tracker is reset at the start of every
// iteration via ResetIteration; it is not safe to share across sessions.
type Tracker struct {
	cfg Config

	mu               sync.Mutex
	schemaRepairs    int
	totalRetries     int
	patchOps         int
	phaseTokensUsed  map[toolregistry.Phase]int
	phaseViolations  map[toolregistry.Phase]int
}

// NewTracker constructs a Tracker bound to cfg.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:             cfg,
		phaseTokensUsed: make(map[toolregistry.Phase]int),
		phaseViolations: make(map[toolregistry.Phase]int),
	}
}

// ResetIteration zeroes the per-iteration counters (repairs, retries, ops)
// at the start of a new plan→...→evaluate cycle. Phase token usage is not
// reset: it accumulates for the life of the session, per spec §4.7's
// session-summary framing.
func (t *Tracker) ResetIteration() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schemaRepairs = 0
	t.totalRetries = 0
	t.patchOps = 0
}

// RecordSchemaRepair increments the repair counter, returning
// BudgetExceededError once the configured ceiling is passed.
func (t *Tracker) RecordSchemaRepair() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schemaRepairs++
	if t.schemaRepairs > t.cfg.MaxSchemaRepairsPerIter {
		return &taxonomy.BudgetExceededError{
			Budget: "max_schema_repairs_per_iter", Limit: t.cfg.MaxSchemaRepairsPerIter, Observed: t.schemaRepairs,
		}
	}
	return nil
}

// RecordRetry increments the retry counter, returning BudgetExceededError
// once exceeded.
func (t *Tracker) RecordRetry() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalRetries++
	if t.totalRetries > t.cfg.MaxTotalRetriesPerIter {
		return &taxonomy.BudgetExceededError{
			Budget: "max_total_retries_per_iter", Limit: t.cfg.MaxTotalRetriesPerIter, Observed: t.totalRetries,
		}
	}
	return nil
}

// CheckPatchOps validates an op-list size against the tighter of the
// process-wide MaxPatchOpsPerIter ceiling and perIterationMaxOps — the
// mode-dependent limit define_patch_scope computed for this iteration
// (spec §4.5: 20 ops default for CREATE, 12 for UPDATE) — without mutating
// any counter (the op list is already fully formed by the time this gate
// runs, in preflight_validate_patch). A perIterationMaxOps of 0 or less
// means no per-iteration fact was set, so only the process-wide ceiling
// applies.
func (t *Tracker) CheckPatchOps(opCount, perIterationMaxOps int) error {
	limit := t.cfg.MaxPatchOpsPerIter
	if perIterationMaxOps > 0 && perIterationMaxOps < limit {
		limit = perIterationMaxOps
	}
	if opCount > limit {
		return &taxonomy.BudgetExceededError{
			Budget: "max_patch_ops_per_iter", Limit: limit, Observed: opCount,
		}
	}
	return nil
}

// CheckIterationCeiling reports whether iteration has reached the absolute
// cap, forcing termination regardless of the evaluate node's verdict (spec
// §4.5's evaluate→HITL_review transition).
func (t *Tracker) CheckIterationCeiling(iteration int) bool {
	return iteration >= t.cfg.IterationCeiling
}

// RecordPhaseTokens accumulates token usage for phase and reports whether
// this call pushed the phase over its budget. The violation is recorded
// for the session summary but never returned as an error: spec §4.7 is
// explicit that token budget violations "do not abort."
func (t *Tracker) RecordPhaseTokens(phase toolregistry.Phase, inputTokens, outputTokens int) (overBudget bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phaseTokensUsed[phase] += inputTokens + outputTokens
	if t.phaseTokensUsed[phase] > t.cfg.tokenBudget(phase) {
		t.phaseViolations[phase]++
		return true
	}
	return false
}

// PhaseTokensUsed reports cumulative token usage for phase so far.
func (t *Tracker) PhaseTokensUsed(phase toolregistry.Phase) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phaseTokensUsed[phase]
}

// Violations reports the count of budget violations recorded per phase,
// for the session summary (spec §4.7).
func (t *Tracker) Violations() map[toolregistry.Phase]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[toolregistry.Phase]int, len(t.phaseViolations))
	for k, v := range t.phaseViolations {
		out[k] = v
	}
	return out
}
