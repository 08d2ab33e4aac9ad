// Package nodes implements the staged execution graph (spec §4.5): the
// 18-node, six-phase state machine that sequences LLM calls and tool
// invocations to resolve one requirement into a validated platform
// mutation. Node handlers are pure with respect to graph shape — they
// read/write session state and return control to Run, which looks up the
// next node from the data-driven Transitions table (transitions.go), never
// from a branch embedded in a handler.
package nodes

// Fact domains (spec §3: "mapping from domain -> mapping from key ->
// scalar"). Grouped here so every node agrees on where a given signal
// lives without re-deriving the string each time.
const (
	domainGraph      = "graph"      // bookkeeping: current_node, iteration
	domainIntent     = "intent"     // intent, target_name, intent_confidence
	domainKnowledge  = "knowledge"  // node_count, schema_fingerprint
	domainTarget     = "target"     // chatflow_id, create_new, candidate_count, top_match_*
	domainFlow       = "flow"       // chatflow_id, chatflow_name, content_hash, node_count
	domainPatch      = "patch"      // max_ops, focus_area, protected_nodes
	domainValidation = "validation" // ok, failure_type, detail, repair_retry_used
	domainEvaluate   = "evaluate"   // verdict, diff_summary, iteration_ceiling_hit, tests_run, tests_passed
	domainErrors     = "errors"     // last error detail surfaced to HITL_review
)

// Artifact domains (spec §3: never injected into prompts).
const (
	artifactFlow  = "flow"  // current, summary_text
	artifactPlan  = "plan"  // text
	artifactPatch = "patch" // base_graph, ops, compile_result, proposed_flow_data
	artifactTest  = "test"  // outcomes
)

// factCurrentNode is the current-node key name within domainGraph.
const (
	factCurrentNode = "current_node"
)

// defaultCapabilityName is the registry slot test/evaluate/hydrate_context
// resolve a domain.Capability under (spec §9's cross-domain extensibility
// hook). A second domain runs the same graph by registering its own
// Capability under a different name and pointing this constant at it;
// nothing else in this package changes.
const defaultCapabilityName = "chatflow"
