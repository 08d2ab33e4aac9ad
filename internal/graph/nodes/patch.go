package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/flowcraft/chatagent/internal/knowledge/pattern"
	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/patchir"
	"github.com/flowcraft/chatagent/internal/platform"
	"github.com/flowcraft/chatagent/internal/state"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

// defaultMaxOpsCreate / defaultMaxOpsUpdate are define_patch_scope's
// mode-dependent ceilings (spec §4.5, §9 example 5): a fresh chatflow gets
// more room to build out than a single edit to an existing one.
const (
	defaultMaxOpsCreate = 20
	defaultMaxOpsUpdate = 12
)

var definePatchScopeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"focus_area": {"type": "string"},
		"protected_nodes": {"type": "array", "items": {"type": "string"}},
		"max_ops": {"type": "integer", "minimum": 1}
	},
	"required": ["focus_area", "protected_nodes"]
}`)

type definePatchScopeResult struct {
	FocusArea      string   `json:"focus_area"`
	ProtectedNodes []string `json:"protected_nodes"`
	MaxOps         int      `json:"max_ops"`
}

// definePatchScope is LLM-lite (spec §4.5): mostly deterministic — it
// resolves the iteration's base graph (the currently loaded flow in update
// mode, or a matching pattern's skeleton when one was named and remains
// schema-compatible, otherwise an empty graph for a fresh create) — then
// makes one small-model call to name the patch's focus area and any
// existing node ids the plan should leave untouched. max_ops is always
// clamped to the mode's default (20 create / 12 update); the model may only
// narrow it, never widen it, since the ceiling is a budget gate, not a
// suggestion.
func (g *Graph) definePatchScope(ctx context.Context, run *Run) error {
	sess := run.Session

	var base patchir.FlowData
	if v, ok := sess.Artifact(artifactFlow, "current"); ok {
		if f, ok := v.(patchir.FlowData); ok {
			base = f
		}
	}

	patternID, _ := sess.Fact(domainIntent, "plan_pattern_id")
	if pid, _ := patternID.(string); pid != "" && g.deps.Patterns != nil {
		p, err := g.deps.Patterns.Get(ctx, pid)
		if err != nil && !errors.Is(err, pattern.ErrNotFound) {
			return fmt.Errorf("nodes: define_patch_scope: looking up pattern %q: %w", pid, err)
		}
		if err == nil {
			fingerprint := g.deps.NodeSchemas.Fingerprint()
			if seeded, serr := pattern.ApplyAsBaseGraph(p, fingerprint); serr == nil {
				base = seeded
				sess.MergeFacts(domainPatch, map[string]any{"seeded_from_pattern": pid})
			}
		}
	}

	sess.SetArtifact(artifactPatch, "base_graph", base)
	sess.MergeFacts(domainPatch, map[string]any{"base_node_count": len(base.Nodes)})

	intentV, _ := sess.Fact(domainIntent, "intent")
	create := intentV != "update"
	defaultMaxOps := defaultMaxOpsCreate
	if !create {
		defaultMaxOps = defaultMaxOpsUpdate
	}

	planTextV, _ := sess.Artifact(artifactPlan, "text")
	planText, _ := planTextV.(string)

	var nodeLines []string
	for _, n := range base.Nodes {
		nodeLines = append(nodeLines, fmt.Sprintf("%s (%s): %s", n.ID, n.NodeType, n.Category))
	}

	system := "You scope a single chatflow patch iteration before it is compiled. " +
		"Name the focus_area (a short phrase describing what this patch touches) and list, " +
		"in protected_nodes, any existing node ids from the base graph the plan should leave " +
		"untouched because they are unrelated to this change. If every existing node is in scope, " +
		"return an empty protected_nodes list. Only suggest max_ops if the patch clearly needs " +
		fmt.Sprintf("fewer than the default ceiling of %d operations; otherwise omit it.", defaultMaxOps)

	userContent := fmt.Sprintf("Plan:\n%s\n\nBase graph nodes (%d):\n%s", planText, len(base.Nodes), strings.Join(nodeLines, "\n"))

	var out definePatchScopeResult
	if err := structuredCall(ctx, run, phaseOf[NodeDefinePatchScope], llm.ModelClassSmall, system, userContent,
		"emit_patch_scope", "Report the patch's focus area, protected nodes, and op ceiling.",
		definePatchScopeSchema, &out); err != nil {
		return err
	}

	maxOps := defaultMaxOps
	if out.MaxOps > 0 && out.MaxOps < defaultMaxOps {
		maxOps = out.MaxOps
	}

	sess.MergeFacts(domainPatch, map[string]any{
		"max_ops":         maxOps,
		"focus_area":      out.FocusArea,
		"protected_nodes": out.ProtectedNodes,
	})
	return nil
}

var compilePatchIRSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"ops": {
			"type": "array",
			"items": {"type": "object"}
		}
	},
	"required": ["ops"]
}`)

type compilePatchIRResult struct {
	Ops []patchir.Op `json:"ops"`
}

// compilePatchIR is an LLM call (spec §4.5): translate the approved plan
// into a typed Patch IR op list against the available node type catalogue
// and credential ids, optionally consulting patch-phase registry tools
// first via agenticStructuredCall. Re-entered by repair_schema's
// unconditional edge, so on that path the prompt also surfaces which node
// types previously failed to resolve.
func (g *Graph) compilePatchIR(ctx context.Context, run *Run) error {
	sess := run.Session

	planText, _ := sess.Artifact(artifactPlan, "text")
	text, _ := planText.(string)

	catalogue := g.deps.NodeSchemas.Names()
	var credLines []string
	for _, t := range []string{"openAIApi", "anthropicApi", "azureOpenAIApi"} {
		if ids := g.deps.Credentials.ListByType(t); len(ids) > 0 {
			credLines = append(credLines, fmt.Sprintf("%s: %s", t, strings.Join(ids, ", ")))
		}
	}

	var retryNote string
	if v, ok := sess.Fact(domainValidation, "detail"); ok {
		if s, _ := v.(string); s != "" {
			retryNote = "Previous attempt failed validation: " + s + ". Correct the op list accordingly."
		}
	}

	userContent := fmt.Sprintf("Plan:\n%s\n\nAvailable node types (%d): %s\n\nAvailable credentials:\n%s\n\n%s",
		text, len(catalogue), strings.Join(catalogue, ", "), strings.Join(credLines, "\n"), retryNote)

	system := "You compile an approved chatflow plan into a Patch IR operation list: " +
		"add_node, set_param, connect, bind_credential objects, each matching the Patch IR's op schema exactly. " +
		"Use the available tools to confirm a node type's parameter schema or a credential id before emitting an op that names it."

	var out compilePatchIRResult
	if err := agenticStructuredCall(ctx, run, phaseOf[NodeCompilePatchIR], system, userContent,
		"emit_patch_ops", "Report the compiled op list.", compilePatchIRSchema, &out); err != nil {
		return err
	}

	sess.SetArtifact(artifactPatch, "ops", out.Ops)
	sess.MergeFacts(domainPatch, map[string]any{"op_count": len(out.Ops)})
	return nil
}

// compileFlowData is deterministic (spec §4.4): run the Patch IR compiler
// against define_patch_scope's base graph and compile_patch_ir's ops,
// storing the full Result for validate to turn into routing facts.
func (g *Graph) compileFlowData(ctx context.Context, run *Run) error {
	sess := run.Session

	baseV, _ := sess.Artifact(artifactPatch, "base_graph")
	base, _ := baseV.(patchir.FlowData)

	opsV, _ := sess.Artifact(artifactPatch, "ops")
	ops, _ := opsV.([]patchir.Op)

	result := patchir.Compile(ctx, &base, ops, g.deps.NodeSchemas, g.deps.Credentials)

	sess.SetArtifact(artifactPatch, "compile_result", result)
	if result.OK() {
		sess.SetArtifact(artifactPatch, "proposed_flow_data", result.ProposedFlowData)
	}
	return nil
}

// validate is deterministic (spec §4.5): it turns compile_flow_data's
// Result into the small set of facts the transition table's guards read,
// never the op-level diagnostics themselves.
func (g *Graph) validate(_ context.Context, run *Run) error {
	sess := run.Session

	v, _ := sess.Artifact(artifactPatch, "compile_result")
	result, _ := v.(patchir.Result)

	if result.OK() {
		sess.MergeFacts(domainValidation, map[string]any{"ok": true})
		return nil
	}

	failureType := string(patchir.CodeOther)
	if len(result.Errors) > 0 {
		failureType = string(result.Errors[0].Code)
	}
	sess.MergeFacts(domainValidation, map[string]any{
		"ok":           false,
		"failure_type": failureType,
		"detail":       result.Errors.Error(),
	})
	return nil
}

// repairSchema reacts to a schema_mismatch diagnostic (spec §4.5): it
// re-resolves every node type compile_patch_ir's op list named that the
// local schema store did not already know, via GetOrRepair's budget-gated
// fetch, then marks repair_retry_used so a second consecutive
// schema_mismatch routes to HITL_review instead of looping.
func (g *Graph) repairSchema(ctx context.Context, run *Run) error {
	sess := run.Session

	resV, _ := sess.Artifact(artifactPatch, "compile_result")
	result, _ := resV.(patchir.Result)
	opsV, _ := sess.Artifact(artifactPatch, "ops")
	ops, _ := opsV.([]patchir.Op)

	if err := run.Budget.RecordSchemaRepair(); err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for _, diag := range result.Errors {
		if diag.Code != patchir.CodeSchemaMismatch {
			continue
		}
		if diag.OpIndex < 0 || diag.OpIndex >= len(ops) {
			continue
		}
		op := ops[diag.OpIndex]
		if op.AddNode == nil {
			continue
		}
		nodeType := op.AddNode.NodeType
		if _, done := seen[nodeType]; done {
			continue
		}
		seen[nodeType] = struct{}{}
		if _, err := g.deps.NodeSchemas.GetOrRepair(ctx, nodeType); err != nil {
			sess.AppendMessage(state.RoleAssistant, fmt.Sprintf("schema repair for %q failed: %s", nodeType, err.Error()))
		}
	}

	sess.MergeFacts(domainValidation, map[string]any{"repair_retry_used": true})
	return nil
}

// preflightValidatePatch is deterministic (spec §4.5, §4.7): it enforces
// the per-iteration op-count budget (gated on define_patch_scope's max_ops
// fact, not only the process-wide ceiling) and the protected_nodes write
// guard as hard gates before any write reaches the platform. A violation of
// either sets within_budget=false so the transition table routes to
// HITL_review rather than aborting the run.
func (g *Graph) preflightValidatePatch(_ context.Context, run *Run) error {
	sess := run.Session

	opsV, _ := sess.Artifact(artifactPatch, "ops")
	ops, _ := opsV.([]patchir.Op)

	maxOpsV, _ := sess.Fact(domainPatch, "max_ops")
	maxOps, _ := maxOpsV.(int)

	if err := run.Budget.CheckPatchOps(len(ops), maxOps); err != nil {
		sess.MergeFacts(domainPatch, map[string]any{"within_budget": false})
		sess.RecordDebug(domainPatch, "budget_violation", err.Error())
		return nil
	}

	if violated := protectedNodeViolations(ops, protectedNodeSet(sess)); len(violated) > 0 {
		sess.MergeFacts(domainPatch, map[string]any{"within_budget": false})
		sess.RecordDebug(domainPatch, "protected_node_violation", violated)
		return nil
	}

	sess.MergeFacts(domainPatch, map[string]any{"within_budget": true})
	return nil
}

// protectedNodeSet reads define_patch_scope's protected_nodes fact back
// into a lookup set.
func protectedNodeSet(sess *state.Session) map[string]struct{} {
	v, _ := sess.Fact(domainPatch, "protected_nodes")
	ids, _ := v.([]string)
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// protectedNodeViolations reports every node id in ops that names a
// protected node as the target of a write. AddNode never violates: it
// introduces a new id, never one define_patch_scope could have already
// known about.
func protectedNodeViolations(ops []patchir.Op, protected map[string]struct{}) []string {
	if len(protected) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var violations []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, isProtected := protected[id]; !isProtected {
			return
		}
		if _, already := seen[id]; already {
			return
		}
		seen[id] = struct{}{}
		violations = append(violations, id)
	}
	for _, op := range ops {
		switch {
		case op.SetParam != nil:
			add(op.SetParam.NodeID)
		case op.Connect != nil:
			add(op.Connect.SourceID)
			add(op.Connect.TargetID)
		case op.BindCredential != nil:
			add(op.BindCredential.NodeID)
		}
	}
	return violations
}

// applyPatch writes the compiled flow graph to the platform (spec §4.5): one
// bounded call, CreateChatflow for a new chatflow or UpdateChatflow guarded
// by the loaded content hash for an existing one. A 409 write conflict sets
// applied=false instead of failing the run, so the transition table routes
// to HITL_review.
func (g *Graph) applyPatch(ctx context.Context, run *Run) error {
	sess := run.Session

	flowV, _ := sess.Artifact(artifactPatch, "proposed_flow_data")
	flow, _ := flowV.(patchir.FlowData)
	flowJSON, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("nodes: apply_patch: encoding proposed flow data: %w", err)
	}

	createNewV, _ := sess.Fact(domainTarget, "create_new")
	createNew, _ := createNewV.(bool)

	var doc platform.Chatflow
	var callErr error
	if createNew {
		nameV, _ := sess.Fact(domainIntent, "target_name")
		name, _ := nameV.(string)
		if name == "" {
			name = sess.Requirement
		}
		doc, callErr = g.deps.Platform.CreateChatflow(ctx, platform.CreateChatflowRequest{Name: name, FlowDataRaw: flowJSON})
		if _, rerr := recordTool(ctx, run, "create_chatflow", doc, callErr); rerr != nil {
			return rerr
		}
	} else {
		idV, _ := sess.Fact(domainTarget, "chatflow_id")
		id, _ := idV.(string)
		hashV, _ := sess.Fact(domainFlow, "content_hash")
		hash, _ := hashV.(string)
		doc, callErr = g.deps.Platform.UpdateChatflow(ctx, id, platform.UpdateChatflowRequest{FlowDataRaw: flowJSON, ExpectedHash: hash})
		_, rerr := recordTool(ctx, run, "update_chatflow", doc, callErr)
		if rerr != nil {
			var wc *taxonomy.WriteConflictError
			if errors.As(rerr, &wc) {
				sess.MergeFacts(domainPatch, map[string]any{"applied": false, "conflict": true})
				sess.RecordDebug(domainPatch, "write_conflict", wc.Error())
				return nil
			}
			return rerr
		}
	}

	sess.MergeFacts(domainPatch, map[string]any{"applied": true})
	sess.MergeFacts(domainFlow, map[string]any{"chatflow_id": doc.ID, "chatflow_name": doc.Name})
	return nil
}
