package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowcraft/chatagent/internal/state"
)

var planSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"plan_text": {"type": "string"},
		"node_types": {"type": "array", "items": {"type": "string"}},
		"pattern_id": {"type": "string"}
	},
	"required": ["plan_text", "node_types"]
}`)

type planResult struct {
	PlanText  string   `json:"plan_text"`
	NodeTypes []string `json:"node_types"`
	PatternID string   `json:"pattern_id"`
}

// plan is an LLM call (spec §4.5): given the requirement, the current
// flow's summary (update mode only), and the available node type
// catalogue, it proposes a plan in prose plus the node types it expects to
// use, optionally naming a pattern to seed from. It may first call any
// plan-phase registry tool (pattern/template lookups) before reporting its
// plan, via agenticStructuredCall's tool-use loop. Re-entered on
// HITL_plan's "revise" and on evaluate's "iterate" verdict, so it must
// read the latest facts/artifacts each time rather than caching anything
// across calls.
func (g *Graph) plan(ctx context.Context, run *Run) error {
	sess := run.Session

	var ctxLines []string
	if v, ok := sess.Artifact(artifactFlow, "summary_text"); ok {
		if s, ok := v.(string); ok && s != "" {
			ctxLines = append(ctxLines, "Current flow: "+s)
		}
	}
	if v, ok := sess.Fact(domainEvaluate, "diff_summary"); ok {
		ctxLines = append(ctxLines, fmt.Sprintf("Prior iteration outcome: %v", v))
	}
	if notes, ok := sess.Fact(domainIntent, "plan_notes"); ok {
		if s, _ := notes.(string); s != "" {
			ctxLines = append(ctxLines, "Reviewer notes: "+s)
		}
	}

	catalogue := g.deps.NodeSchemas.Names()
	userContent := fmt.Sprintf(
		"Requirement: %s\n%s\nAvailable node types (%d): %s",
		sess.Requirement, strings.Join(ctxLines, "\n"), len(catalogue), strings.Join(catalogue, ", "))

	system := "You plan a chatflow build or edit as prose plus the node types it will use. " +
		"Use the available tools to look up a matching pattern or template before committing to a plan. " +
		"Name an existing pattern id only when one clearly matches; otherwise omit pattern_id."

	var out planResult
	if err := agenticStructuredCall(ctx, run, phaseOf[NodePlan], system, userContent,
		"emit_plan", "Report the plan.", planSchema, &out); err != nil {
		return err
	}

	sess.SetArtifact(artifactPlan, "text", out.PlanText)
	sess.MergeFacts(domainIntent, map[string]any{
		"plan_node_types": out.NodeTypes,
		"plan_pattern_id": out.PatternID,
	})
	run.Session.AdvanceIteration()
	g.deps.NodeSchemas.ResetRepairBudget(0)
	return nil
}

// hitlPlan pauses for a human approve/reject/revise verdict on the plan
// (spec §4.5), or synthesizes "approved" under auto_approve.
func (g *Graph) hitlPlan(ctx context.Context, run *Run) error {
	sess := run.Session

	if sess.AutoApprove {
		sess.AppendMessage(state.RoleAssistant, "[auto-approved] plan")
		sess.MergeFacts(domainIntent, map[string]any{"plan_decision": "approved"})
		return nil
	}

	waitCtx, cancel := withHITLDeadline(ctx, run)
	defer cancel()

	dec, err := run.Ctrl.WaitResume(waitCtx)
	if err != nil {
		return classifyHITLWait(err)
	}

	sess.AppendMessage(state.RoleUser, fmt.Sprintf("plan decision: %s (%s)", dec.Decision, dec.Notes))
	sess.MergeFacts(domainIntent, map[string]any{
		"plan_decision": dec.Decision,
		"plan_notes":    dec.Notes,
	})
	return nil
}
