package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/flowcraft/chatagent/internal/budget"
	"github.com/flowcraft/chatagent/internal/checkpoint"
	"github.com/flowcraft/chatagent/internal/domain"
	"github.com/flowcraft/chatagent/internal/events"
	"github.com/flowcraft/chatagent/internal/graph/interrupt"
	"github.com/flowcraft/chatagent/internal/knowledge/credential"
	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
	"github.com/flowcraft/chatagent/internal/knowledge/pattern"
	"github.com/flowcraft/chatagent/internal/knowledge/template"
	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/patchir"
	"github.com/flowcraft/chatagent/internal/platform"
	"github.com/flowcraft/chatagent/internal/state"
	"github.com/flowcraft/chatagent/internal/taxonomy"
	"github.com/flowcraft/chatagent/internal/toolregistry"
)

// Node identifies one of the 18 states in the staged graph, spelled exactly
// as spec §4.5 names them so events/logs/traces read the same as the
// design document.
type Node string

const (
	NodeClassifyIntent        Node = "classify_intent"
	NodeHydrateContext        Node = "hydrate_context"
	NodeResolveTarget         Node = "resolve_target"
	NodeHITLSelectTarget      Node = "HITL_select_target"
	NodeLoadCurrentFlow       Node = "load_current_flow"
	NodeSummarizeCurrentFlow  Node = "summarize_current_flow"
	NodePlan                  Node = "plan"
	NodeHITLPlan              Node = "HITL_plan"
	NodeDefinePatchScope      Node = "define_patch_scope"
	NodeCompilePatchIR        Node = "compile_patch_ir"
	NodeCompileFlowData       Node = "compile_flow_data"
	NodeValidate              Node = "validate"
	NodeRepairSchema          Node = "repair_schema"
	NodePreflightValidatePatch Node = "preflight_validate_patch"
	NodeApplyPatch            Node = "apply_patch"
	NodeTest                  Node = "test"
	NodeEvaluate              Node = "evaluate"
	NodeHITLReview            Node = "HITL_review"
)

// phaseOf maps a node to the toolregistry phase it executes in, driving
// both tool visibility (ToolDefs/Executor/Context) and which budget a
// node's token usage counts against (spec §4.7).
var phaseOf = map[Node]toolregistry.Phase{
	NodeClassifyIntent:       toolregistry.PhaseDiscover,
	NodeHydrateContext:       toolregistry.PhaseDiscover,
	NodeResolveTarget:        toolregistry.PhaseDiscover,
	NodeHITLSelectTarget:     toolregistry.PhaseDiscover,
	NodeLoadCurrentFlow:      toolregistry.PhaseDiscover,
	NodeSummarizeCurrentFlow: toolregistry.PhaseDiscover,
	NodePlan:                 toolregistry.PhasePlan,
	NodeHITLPlan:             toolregistry.PhasePlan,
	NodeDefinePatchScope:     toolregistry.PhasePlan,
	NodeCompilePatchIR:       toolregistry.PhasePatch,
	NodeCompileFlowData:      toolregistry.PhasePatch,
	NodeValidate:             toolregistry.PhasePatch,
	NodeRepairSchema:         toolregistry.PhasePatch,
	NodePreflightValidatePatch: toolregistry.PhasePatch,
	NodeApplyPatch:           toolregistry.PhasePatch,
	NodeTest:                 toolregistry.PhaseTest,
	NodeEvaluate:             toolregistry.PhaseEvaluate,
	NodeHITLReview:           toolregistry.PhaseEvaluate,
}

// Deps bundles every collaborator a node handler may call into. A Graph is
// built once per process and reused across sessions; nothing here is
// session-scoped (that lives on *state.Session and the per-run budget.Tracker
// Run constructs).
type Deps struct {
	LLM         llm.Engine
	Models      ModelSelector
	Tools       *toolregistry.Registry
	NodeSchemas *nodeschema.Store
	Credentials *credential.Store
	Templates   *template.Store
	Patterns    pattern.Store
	Platform    PlatformClient
	Checkpoints checkpoint.Store
	Events      *events.Recorder
	Capabilities *domain.Registry
	BudgetConfig budget.Config
	HITLLongPoll time.Duration
	PatternAutoSave bool
}

// ModelSelector resolves a concrete model identifier for a capability
// tier, so a node can ask for "small" or "high-reasoning" without knowing
// which provider is configured (internal/llm.ModelClass).
type ModelSelector interface {
	Model(class llm.ModelClass) string
}

// PlatformClient is the narrow slice of *platform.Client the graph calls
// directly (outside the knowledge stores' own Fetcher-shaped repair
// paths), so nodes can be tested against a fake.
type PlatformClient interface {
	ListChatflows(ctx context.Context) ([]platform.ChatflowSummary, error)
	GetChatflow(ctx context.Context, id string) (platform.Chatflow, error)
	CreateChatflow(ctx context.Context, req platform.CreateChatflowRequest) (platform.Chatflow, error)
	UpdateChatflow(ctx context.Context, id string, req platform.UpdateChatflowRequest) (platform.Chatflow, error)
	Predict(ctx context.Context, id string, req platform.PredictRequest) (platform.PredictResponse, error)
}

// Graph is the staged execution graph bound to one process's Deps.
type Graph struct {
	deps     Deps
	handlers map[Node]handlerFunc
}

// handlerFunc is the signature every node implementation satisfies. A
// handler does the node's work (LLM/tool/platform calls, deterministic
// compute) and mutates run's session/budget/interrupt state; it never
// decides the next node itself — that is Transitions' job.
type handlerFunc func(ctx context.Context, run *Run) error

// Run is the per-session execution context threaded through every node
// handler: the session being mutated, this run's budget tracker, and the
// HITL controller wired to the hosting workflow's signal channels.
type Run struct {
	Graph   *Graph
	Session *state.Session
	Budget  *budget.Tracker
	Ctrl    *interrupt.Controller
}

// New constructs a Graph wired to deps, registering every node handler.
func New(deps Deps) *Graph {
	g := &Graph{deps: deps}
	g.handlers = map[Node]handlerFunc{
		NodeClassifyIntent:        g.classifyIntent,
		NodeHydrateContext:        g.hydrateContext,
		NodeResolveTarget:         g.resolveTarget,
		NodeHITLSelectTarget:      g.hitlSelectTarget,
		NodeLoadCurrentFlow:       g.loadCurrentFlow,
		NodeSummarizeCurrentFlow:  g.summarizeCurrentFlow,
		NodePlan:                  g.plan,
		NodeHITLPlan:              g.hitlPlan,
		NodeDefinePatchScope:      g.definePatchScope,
		NodeCompilePatchIR:        g.compilePatchIR,
		NodeCompileFlowData:       g.compileFlowData,
		NodeValidate:              g.validate,
		NodeRepairSchema:          g.repairSchema,
		NodePreflightValidatePatch: g.preflightValidatePatch,
		NodeApplyPatch:            g.applyPatch,
		NodeTest:                  g.test,
		NodeEvaluate:              g.evaluate,
		NodeHITLReview:            g.hitlReview,
	}
	return g
}

// Outcome is what Run.Execute returns to its caller (a workflow handler, a
// CLI, or a service layer) once the graph reaches a terminal or suspended
// state.
type Outcome struct {
	Status      Status
	ResultRefs  []string
	Summary     string
}

// Status mirrors spec §6's session ingress contract result states.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusPendingInterrupt Status = "pending_interrupt"
	StatusTimeout         Status = "timeout"
	StatusError           Status = "error"
)

// Execute drives sess through the staged graph starting at its current
// checkpointed node (classify_intent for a fresh session), one node per
// iteration of the loop, checkpointing and emitting a start/end event pair
// at every node boundary (spec §4.6, §8). It returns when the session
// reaches a terminal node (HITL_review), a blocking HITL wait times out, or
// a node handler fails with an error the graph cannot route around.
func (g *Graph) Execute(ctx context.Context, run *Run) (Outcome, error) {
	current := currentNode(run.Session)

	for {
		handler, ok := g.handlers[current]
		if !ok {
			return Outcome{Status: StatusError}, fmt.Errorf("nodes: no handler registered for %q", current)
		}

		start := time.Now()
		g.emit(ctx, run.Session, current, events.StatusStart, 0, "")

		err := handler(ctx, run)

		duration := time.Since(start)
		if err != nil {
			if to := asTimeout(err); to {
				g.emit(ctx, run.Session, current, events.StatusTimeout, duration, err.Error())
				g.checkpoint(ctx, run.Session)
				return Outcome{Status: StatusTimeout, Summary: err.Error()}, nil
			}
			terr := taxonomy.FromError(string(current), err)
			run.Session.MergeFacts(domainErrors, map[string]any{"detail": terr.Error()})
			g.emit(ctx, run.Session, current, events.StatusError, duration, terr.Error())
			g.checkpoint(ctx, run.Session)
			return Outcome{Status: StatusError, Summary: terr.Error()}, terr
		}
		g.emit(ctx, run.Session, current, events.StatusEnd, duration, "")

		next, terminal := Transitions.Next(current, run.Session)
		setCurrentNode(run.Session, next)
		g.checkpoint(ctx, run.Session)

		if terminal {
			return g.finalOutcome(run.Session), nil
		}
		current = next
	}
}

func (g *Graph) finalOutcome(sess *state.Session) Outcome {
	summary, _ := sess.Fact(domainEvaluate, "verdict")
	var refs []string
	if id, ok := sess.Fact(domainFlow, "chatflow_id"); ok {
		if s, ok := id.(string); ok && s != "" {
			refs = append(refs, s)
		}
	}
	return Outcome{
		Status:     StatusCompleted,
		ResultRefs: refs,
		Summary:    fmt.Sprintf("verdict=%v", summary),
	}
}

func (g *Graph) emit(ctx context.Context, sess *state.Session, n Node, status events.Status, dur time.Duration, summary string) {
	if g.deps.Events == nil {
		return
	}
	_, _ = g.deps.Events.Emit(ctx, events.Event{
		SessionID:  sess.SessionID,
		Node:       string(n),
		Phase:      string(phaseOf[n]),
		Status:     status,
		DurationMS: dur.Milliseconds(),
		Summary:    summary,
		EmittedAt:  time.Now(),
	})
}

func (g *Graph) checkpoint(ctx context.Context, sess *state.Session) {
	if g.deps.Checkpoints == nil {
		return
	}
	_ = g.deps.Checkpoints.Save(ctx, sess.Snapshot(time.Now()))
}

func currentNode(sess *state.Session) Node {
	v, ok := sess.Fact(domainGraph, factCurrentNode)
	if !ok {
		return NodeClassifyIntent
	}
	s, _ := v.(string)
	if s == "" {
		return NodeClassifyIntent
	}
	return Node(s)
}

func setCurrentNode(sess *state.Session, n Node) {
	sess.MergeFacts(domainGraph, map[string]any{factCurrentNode: string(n)})
}

func asTimeout(err error) bool {
	return err == interrupt.ErrLongPollTimeout
}
