// Package chatflow is the reference domain.Capability implementation (spec
// §9): the chatflow platform wired as the first of potentially several
// domains the staged graph can target. A second domain registers its own
// Capability under its own name; nothing in internal/graph/nodes changes.
package chatflow

import (
	"context"
	"fmt"

	"github.com/flowcraft/chatagent/internal/domain"
	"github.com/flowcraft/chatagent/internal/knowledge/credential"
	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
	"github.com/flowcraft/chatagent/internal/patchir"
	"github.com/flowcraft/chatagent/internal/platform"
)

// Capability implements domain.Capability against the chatflow platform's
// REST API and its own Patch IR compiler.
type Capability struct {
	Platform    PlatformClient
	NodeSchemas *nodeschema.Store
	Credentials *credential.Store
}

// PlatformClient is the narrow slice of *platform.Client Discover/test
// issue directly.
type PlatformClient interface {
	ListChatflows(ctx context.Context) ([]platform.ChatflowSummary, error)
	Predict(ctx context.Context, id string, req platform.PredictRequest) (platform.PredictResponse, error)
}

// New builds a chatflow Capability bound to the process's shared knowledge
// stores and platform client, the same instances internal/graph/nodes.Deps
// carries.
func New(p PlatformClient, schemas *nodeschema.Store, creds *credential.Store) *Capability {
	return &Capability{Platform: p, NodeSchemas: schemas, Credentials: creds}
}

func (c *Capability) Name() string { return "chatflow" }

// Discover reports the local knowledge store's size and the count of
// existing chatflows, giving hydrate_context a domain-specific fact beyond
// the generic schema fingerprint it already reads directly.
func (c *Capability) Discover(ctx context.Context, _ string) (domain.DiscoverResult, error) {
	flows, err := c.Platform.ListChatflows(ctx)
	if err != nil {
		return domain.DiscoverResult{}, err
	}
	return domain.DiscoverResult{Facts: map[string]any{
		"existing_chatflow_count": len(flows),
		"node_schema_count":       c.NodeSchemas.Len(),
	}}, nil
}

// CompileOps lowers planText into a Patch IR op list. The chatflow domain's
// ops are produced by an LLM call in internal/graph/nodes.compilePatchIR
// rather than here (spec §4.5 names compile_patch_ir as its own LLM node);
// CompileOps exists so a capability-first dispatch remains possible for a
// future caller that wants compilation fully behind the interface, and is
// exercised by this package's own tests against a fixed op list.
func (c *Capability) CompileOps(ctx context.Context, _ string, scope map[string]any) (domain.CompiledOps, error) {
	ops, _ := scope["ops"].([]patchir.Op)
	var base patchir.FlowData
	if b, ok := scope["base_graph"].(patchir.FlowData); ok {
		base = b
	}
	result := patchir.Compile(ctx, &base, ops, c.NodeSchemas, c.Credentials)
	return domain.CompiledOps{Ops: result, Scope: scope}, nil
}

// Validate unwraps the patchir.Result a prior CompileOps produced into the
// capability-agnostic ValidateResult shape.
func (c *Capability) Validate(_ context.Context, ops any) (domain.ValidateResult, error) {
	result, ok := ops.(patchir.Result)
	if !ok {
		return domain.ValidateResult{}, fmt.Errorf("chatflow: Validate expects a patchir.Result, got %T", ops)
	}
	if result.OK() {
		return domain.ValidateResult{OK: true}, nil
	}
	failureType := string(patchir.CodeOther)
	if len(result.Errors) > 0 {
		failureType = string(result.Errors[0].Code)
	}
	return domain.ValidateResult{OK: false, FailureType: failureType, Detail: result.Errors.Error()}, nil
}

// GenerateTests issues exactly one happy-path and one edge-case test, per
// this package's doc comment convention: a question restating planText
// verbatim, and an empty-input probe.
func (c *Capability) GenerateTests(_ context.Context, planText string) ([]domain.GeneratedTest, error) {
	return []domain.GeneratedTest{
		{Name: "happy_path", Input: planText},
		{Name: "empty_input", Input: ""},
	}, nil
}

// Evaluate judges a round of TestOutcomes: "done" when every test passed,
// "iterate" when at least one failed but none errored with a 5xx, else
// "done-with-failure".
func (c *Capability) Evaluate(_ context.Context, outcomes []domain.TestOutcome) (domain.EvalResult, error) {
	if len(outcomes) == 0 {
		return domain.EvalResult{Verdict: "done-with-failure", DiffSummary: "no test outcomes to evaluate"}, nil
	}
	failed := 0
	serverError := false
	for _, o := range outcomes {
		if !o.Passed {
			failed++
		}
		if o.StatusCode >= 500 {
			serverError = true
		}
	}
	switch {
	case failed == 0:
		return domain.EvalResult{Verdict: "done", DiffSummary: fmt.Sprintf("%d/%d tests passed", len(outcomes)-failed, len(outcomes))}, nil
	case serverError:
		return domain.EvalResult{Verdict: "done-with-failure", DiffSummary: fmt.Sprintf("%d/%d tests failed with a server error", failed, len(outcomes))}, nil
	default:
		return domain.EvalResult{Verdict: "iterate", DiffSummary: fmt.Sprintf("%d/%d tests failed", failed, len(outcomes))}, nil
	}
}

// Predict runs one generated test's input against chatflowID, adapting the
// platform's predict response into a TestOutcome. Exposed separately from
// GenerateTests/Evaluate since running a test is an I/O step the test node
// invokes once per generated case rather than something a capability batches
// internally.
func (c *Capability) Predict(ctx context.Context, chatflowID string, t domain.GeneratedTest) (domain.TestOutcome, error) {
	question, _ := t.Input.(string)
	resp, err := c.Platform.Predict(ctx, chatflowID, platform.PredictRequest{Question: question})
	if err != nil {
		return domain.TestOutcome{Name: t.Name, Passed: false, BodyExcerpt: err.Error()}, err
	}
	return domain.TestOutcome{Name: t.Name, Passed: resp.Text != "", StatusCode: 200, BodyExcerpt: resp.Text}, nil
}

var _ domain.Capability = (*Capability)(nil)
