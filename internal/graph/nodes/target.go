package nodes

import (
	"context"
	"fmt"

	"github.com/flowcraft/chatagent/internal/graph/interrupt"
	"github.com/flowcraft/chatagent/internal/state"
)

// resolveTarget lists existing chatflows and fuzzy-ranks them against the
// name classify_intent extracted (spec §4.5): one bounded platform call,
// never a per-candidate fetch. The ranked list is stored as an artifact
// (never prompted in full) with only the count and top match surfaced as
// facts for HITL_select_target's guard and transcript.
func (g *Graph) resolveTarget(ctx context.Context, run *Run) error {
	sess := run.Session

	targetName, _ := sess.Fact(domainIntent, "target_name")
	query, _ := targetName.(string)
	if query == "" {
		query = sess.Requirement
	}

	summaries, err := g.deps.Platform.ListChatflows(ctx)
	if _, rerr := recordTool(ctx, run, "list_chatflows", summaries, err); rerr != nil {
		return rerr
	}

	candidates := make([]TargetCandidate, 0, len(summaries))
	for _, s := range summaries {
		candidates = append(candidates, TargetCandidate{ID: s.ID, Name: s.Name, UpdatedAt: s.UpdatedAt})
	}
	ranked := rankCandidates(query, candidates)

	sess.SetArtifact(domainTarget, "candidates", ranked)

	facts := map[string]any{
		"candidate_count": len(ranked),
		"query":           query,
	}
	if len(ranked) > 0 {
		facts["top_match_id"] = ranked[0].ID
		facts["top_match_name"] = ranked[0].Name
		facts["top_match_score"] = ranked[0].Score
	}
	sess.MergeFacts(domainTarget, facts)
	return nil
}

// hitlSelectTarget pauses for the user's choice among resolveTarget's ranked
// candidates, or synthesizes one when the session runs with auto_approve
// (spec §8): the top-ranked candidate is selected if any was found, else the
// session proceeds as create_new.
func (g *Graph) hitlSelectTarget(ctx context.Context, run *Run) error {
	sess := run.Session

	if sess.AutoApprove {
		topID, _ := sess.Fact(domainTarget, "top_match_id")
		id, _ := topID.(string)
		createNew := id == ""
		sess.AppendMessage(state.RoleAssistant, "[auto-approved] select_target: "+autoSelectSummary(id, createNew))
		sess.MergeFacts(domainTarget, map[string]any{
			"chatflow_id": id,
			"create_new":  createNew,
		})
		return nil
	}

	waitCtx, cancel := withHITLDeadline(ctx, run)
	defer cancel()

	ans, err := run.Ctrl.WaitSelectTarget(waitCtx)
	if err != nil {
		return classifyHITLWait(err)
	}

	sess.AppendMessage(state.RoleUser, fmt.Sprintf("select_target decision: chatflow_id=%q create_new=%v",
		ans.TargetChatflowID, ans.CreateNew))
	sess.MergeFacts(domainTarget, map[string]any{
		"chatflow_id": ans.TargetChatflowID,
		"create_new":  ans.CreateNew,
	})
	return nil
}

func autoSelectSummary(id string, createNew bool) string {
	if createNew {
		return "no confident match, creating new chatflow"
	}
	return fmt.Sprintf("selected %s", id)
}

// withHITLDeadline derives a context bounded by the configured long-poll
// window (spec §5's default 300s, overridable via Deps.HITLLongPoll).
func withHITLDeadline(ctx context.Context, run *Run) (context.Context, context.CancelFunc) {
	d := run.Graph.deps.HITLLongPoll
	if d <= 0 {
		d = interrupt.DefaultLongPoll
	}
	return contextWithTimeout(ctx, d)
}
