package nodes

import "github.com/flowcraft/chatagent/internal/state"

// Edge is one row of the staged graph's transition table (spec §4.5): a
// guarded move from one node to another. Guard is evaluated against the
// session's facts only — guards never see artifacts/debug, matching the
// invariant that routing decisions are driven by the same small, bounded
// signals a human reviewing the event log would see. A nil Guard always
// matches; edges for the same From are tried in table order and the first
// match wins, so the order below IS the decision tree (spec §9: "model the
// graph as data... not as nested conditionals").
type Edge struct {
	From  Node
	To    Node
	Guard func(sess *state.Session) bool
}

func factEquals(domain, key string, want string) func(*state.Session) bool {
	return func(sess *state.Session) bool {
		v, ok := sess.Fact(domain, key)
		if !ok {
			return false
		}
		s, _ := v.(string)
		return s == want
	}
}

func factTrue(domain, key string) func(*state.Session) bool {
	return func(sess *state.Session) bool {
		v, ok := sess.Fact(domain, key)
		if !ok {
			return false
		}
		b, _ := v.(bool)
		return b
	}
}

func factFalseOrAbsent(domain, key string) func(*state.Session) bool {
	t := factTrue(domain, key)
	return func(sess *state.Session) bool { return !t(sess) }
}

// table is the staged graph's full transition table (spec §4.5's table,
// plus the Phase A/B/C/D/E/F narrative connecting nodes the summary table
// left implicit). HITL_review has no outgoing edges: reaching it always
// terminates the run.
var table = []Edge{
	{From: NodeClassifyIntent, To: NodeHydrateContext},

	{From: NodeHydrateContext, To: NodePlan, Guard: factEquals(domainIntent, "intent", "create")},
	{From: NodeHydrateContext, To: NodeResolveTarget, Guard: factEquals(domainIntent, "intent", "update")},

	{From: NodeResolveTarget, To: NodeHITLSelectTarget},

	{From: NodeHITLSelectTarget, To: NodePlan, Guard: factTrue(domainTarget, "create_new")},
	{From: NodeHITLSelectTarget, To: NodeLoadCurrentFlow, Guard: factFalseOrAbsent(domainTarget, "create_new")},

	{From: NodeLoadCurrentFlow, To: NodeSummarizeCurrentFlow},
	{From: NodeSummarizeCurrentFlow, To: NodePlan},

	{From: NodePlan, To: NodeHITLPlan},

	{From: NodeHITLPlan, To: NodePlan, Guard: factEquals(domainIntent, "plan_decision", "revise")},
	{From: NodeHITLPlan, To: NodeHITLReview, Guard: factEquals(domainIntent, "plan_decision", "rejected")},
	{From: NodeHITLPlan, To: NodeDefinePatchScope, Guard: factEquals(domainIntent, "plan_decision", "approved")},

	{From: NodeDefinePatchScope, To: NodeCompilePatchIR},
	{From: NodeCompilePatchIR, To: NodeCompileFlowData},
	{From: NodeCompileFlowData, To: NodeValidate},

	{From: NodeValidate, To: NodePreflightValidatePatch, Guard: factTrue(domainValidation, "ok")},
	{
		From: NodeValidate, To: NodeRepairSchema,
		Guard: func(sess *state.Session) bool {
			if factTrue(domainValidation, "ok")(sess) {
				return false
			}
			if !factEquals(domainValidation, "failure_type", "schema_mismatch")(sess) {
				return false
			}
			return factFalseOrAbsent(domainValidation, "repair_retry_used")(sess)
		},
	},
	{From: NodeValidate, To: NodeHITLReview}, // any other failure: surface and terminate

	{From: NodeRepairSchema, To: NodeCompilePatchIR},

	{From: NodePreflightValidatePatch, To: NodeApplyPatch, Guard: factTrue(domainPatch, "within_budget")},
	{From: NodePreflightValidatePatch, To: NodeHITLReview}, // budget exceeded

	{From: NodeApplyPatch, To: NodeTest, Guard: factTrue(domainPatch, "applied")},
	{From: NodeApplyPatch, To: NodeHITLReview}, // write conflict / external error

	{From: NodeTest, To: NodeEvaluate},

	{
		From: NodeEvaluate, To: NodePlan,
		Guard: func(sess *state.Session) bool {
			return factEquals(domainEvaluate, "verdict", "iterate")(sess) &&
				factFalseOrAbsent(domainEvaluate, "iteration_ceiling_hit")(sess)
		},
	},
	{From: NodeEvaluate, To: NodeHITLReview}, // done, done-with-failure, or ceiling reached
}

// transitions indexes table by From for Next's lookup.
type transitions struct {
	byFrom map[Node][]Edge
}

// Transitions is the process-wide, immutable transition table every Graph
// shares (it carries no per-session or per-process state).
var Transitions = buildTransitions(table)

func buildTransitions(edges []Edge) transitions {
	t := transitions{byFrom: make(map[Node][]Edge)}
	for _, e := range edges {
		t.byFrom[e.From] = append(t.byFrom[e.From], e)
	}
	return t
}

// Next evaluates from's edges in table order against sess's current facts
// and returns the first match. terminal is true when from has no outgoing
// edges (HITL_review) or none of its guarded edges matched (a defensive
// fallback that should never trigger given every From above ends in an
// unconditional or catch-all edge).
func (t transitions) Next(from Node, sess *state.Session) (to Node, terminal bool) {
	edges, ok := t.byFrom[from]
	if !ok || len(edges) == 0 {
		return "", true
	}
	for _, e := range edges {
		if e.Guard == nil || e.Guard(sess) {
			return e.To, false
		}
	}
	return "", true
}
