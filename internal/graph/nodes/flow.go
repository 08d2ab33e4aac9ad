package nodes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowcraft/chatagent/internal/patchir"
	"github.com/flowcraft/chatagent/internal/state"
)

// loadCurrentFlow fetches the target chatflow's full document (spec §4.5):
// one bounded platform call, the parsed flow graph and its content hash
// stashed as artifacts/facts for compile_patch_ir's base graph and
// apply_patch's WriteGuard check respectively.
func (g *Graph) loadCurrentFlow(ctx context.Context, run *Run) error {
	sess := run.Session

	idVal, _ := sess.Fact(domainTarget, "chatflow_id")
	id, _ := idVal.(string)
	if id == "" {
		return fmt.Errorf("nodes: load_current_flow: no chatflow_id resolved")
	}

	doc, err := g.deps.Platform.GetChatflow(ctx, id)
	if _, rerr := recordTool(ctx, run, "get_chatflow", doc, err); rerr != nil {
		return rerr
	}

	var flow patchir.FlowData
	if len(doc.FlowDataRaw) > 0 {
		if jerr := json.Unmarshal(doc.FlowDataRaw, &flow); jerr != nil {
			return fmt.Errorf("nodes: load_current_flow: decoding flow data: %w", jerr)
		}
	}

	sess.SetArtifact(artifactFlow, "current", flow)
	sess.MergeFacts(domainFlow, map[string]any{
		"chatflow_id":   doc.ID,
		"chatflow_name": doc.Name,
		"content_hash":  contentHash(doc.FlowDataRaw),
		"node_count":    len(flow.Nodes),
	})
	return nil
}

// summarizeCurrentFlow is deterministic (spec §4.5): it renders a short,
// bounded description of the loaded flow's node types and wiring for the
// plan node's prompt, never the full FlowData.
func (g *Graph) summarizeCurrentFlow(_ context.Context, run *Run) error {
	sess := run.Session
	v, _ := sess.Artifact(artifactFlow, "current")
	flow, _ := v.(patchir.FlowData)

	types := make([]string, 0, len(flow.Nodes))
	for _, n := range flow.Nodes {
		types = append(types, fmt.Sprintf("%s(%s)", n.ID, n.NodeType))
	}
	summary := fmt.Sprintf("current flow has %d node(s): %s; %d edge(s)",
		len(flow.Nodes), strings.Join(types, ", "), len(flow.Edges))
	if len(summary) > state.MaxMessageChars {
		summary = summary[:state.MaxMessageChars]
	}

	sess.SetArtifact(artifactFlow, "summary_text", summary)
	sess.AppendMessage(state.RoleAssistant, summary)
	return nil
}

func contentHash(raw json.RawMessage) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
