package nodes

import (
	"context"
	"encoding/json"

	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/state"
)

// classifyIntentSchema forces the model to answer with exactly the fields
// spec §4.5 names for classify_intent: intent, optional target_name, and a
// confidence score.
var classifyIntentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"intent": {"type": "string", "enum": ["create", "update"]},
		"target_name": {"type": "string"},
		"intent_confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["intent", "intent_confidence"]
}`)

type classifyIntentResult struct {
	Intent           string  `json:"intent"`
	TargetName       string  `json:"target_name"`
	IntentConfidence float64 `json:"intent_confidence"`
}

// classifyIntent is an LLM call, no tools (spec §4.5): it decides whether
// the requirement describes a brand-new chatflow or an edit to an existing
// one.
func (g *Graph) classifyIntent(ctx context.Context, run *Run) error {
	sess := run.Session
	sess.AppendMessage(state.RoleUser, sess.Requirement)

	system := "You classify a chatflow-building requirement as either creating " +
		"a brand-new chatflow or updating an existing one. If the requirement " +
		"names or clearly implies an existing chatflow, classify as update and " +
		"extract its name into target_name."

	var out classifyIntentResult
	if err := structuredCall(ctx, run, phaseOf[NodeClassifyIntent], llm.ModelClassDefault, system, sess.Requirement,
		"emit_intent_classification", "Report the classified intent.", classifyIntentSchema, &out); err != nil {
		return err
	}

	sess.MergeFacts(domainIntent, map[string]any{
		"intent":            out.Intent,
		"target_name":       out.TargetName,
		"intent_confidence": out.IntentConfidence,
	})
	return nil
}

// hydrateContext is mostly deterministic (spec §4.5): it loads node count
// and the current schema fingerprint from the local knowledge store into
// facts, then asks the active domain capability to contribute whatever
// domain-specific discovery facts it has (existing chatflow count, for the
// chatflow capability) so a second domain can surface its own signal here
// without this handler branching on which domain is active.
func (g *Graph) hydrateContext(ctx context.Context, run *Run) error {
	sess := run.Session
	sess.MergeFacts(domainKnowledge, map[string]any{
		"node_count":         g.deps.NodeSchemas.Len(),
		"schema_fingerprint": g.deps.NodeSchemas.Fingerprint(),
	})

	cap, ok := g.deps.Capabilities.Get(defaultCapabilityName)
	if !ok {
		return nil
	}
	result, err := cap.Discover(ctx, sess.Requirement)
	if _, rerr := recordTool(ctx, run, "discover", result, err); rerr != nil {
		return rerr
	}
	sess.MergeFacts(domainKnowledge, result.Facts)
	return nil
}
