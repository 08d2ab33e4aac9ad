package nodes

import (
	"context"
	"fmt"

	"github.com/flowcraft/chatagent/internal/domain"
	"github.com/flowcraft/chatagent/internal/state"
)

// evaluate judges the test node's outcomes via the registered domain
// capability (spec §4.5, §9) and applies the iteration ceiling: reaching
// the ceiling forces the transition to HITL_review regardless of verdict
// (spec §4.7).
func (g *Graph) evaluate(ctx context.Context, run *Run) error {
	sess := run.Session

	cap, ok := g.deps.Capabilities.Get(defaultCapabilityName)
	if !ok {
		return fmt.Errorf("nodes: evaluate: no %q capability registered", defaultCapabilityName)
	}

	outcomesV, _ := sess.Artifact(artifactTest, "outcomes")
	outcomes, _ := outcomesV.([]domain.TestOutcome)

	result, err := cap.Evaluate(ctx, outcomes)
	if _, rerr := recordTool(ctx, run, "evaluate_outcomes", result, err); rerr != nil {
		return rerr
	}

	ceilingHit := run.Budget.CheckIterationCeiling(sess.Iteration)
	sess.MergeFacts(domainEvaluate, map[string]any{
		"verdict":               result.Verdict,
		"diff_summary":          result.DiffSummary,
		"iteration_ceiling_hit": ceilingHit,
	})
	return nil
}

// hitlReview is the staged graph's only terminal node (spec §4.5): it
// surfaces the final state for a human decision, or auto-approves under
// auto_approve, and marks the session done either way.
func (g *Graph) hitlReview(ctx context.Context, run *Run) error {
	sess := run.Session

	if sess.AutoApprove {
		sess.AppendMessage(state.RoleAssistant, "[auto-approved] review")
		sess.MergeFacts(domainEvaluate, map[string]any{"reviewed": true, "review_approved": true})
		sess.MarkDone()
		return nil
	}

	waitCtx, cancel := withHITLDeadline(ctx, run)
	defer cancel()

	dec, err := run.Ctrl.WaitReview(waitCtx)
	if err != nil {
		return classifyHITLWait(err)
	}

	sess.AppendMessage(state.RoleUser, fmt.Sprintf("review decision: approved=%v (%s)", dec.Approved, dec.Notes))
	sess.MergeFacts(domainEvaluate, map[string]any{
		"reviewed":        true,
		"review_approved": dec.Approved,
		"review_notes":    dec.Notes,
	})
	sess.MarkDone()
	return nil
}
