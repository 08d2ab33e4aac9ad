package nodes

import (
	"context"
	"fmt"

	"github.com/flowcraft/chatagent/internal/domain"
)

// test runs the applied chatflow through its domain capability's generated
// test cases (spec §4.5, §9): GenerateTests then one Predict call per case,
// via the registered chatflow capability so a second domain's test node
// behaves identically without this handler branching on which domain is
// active.
func (g *Graph) test(ctx context.Context, run *Run) error {
	sess := run.Session

	cap, ok := g.deps.Capabilities.Get(defaultCapabilityName)
	if !ok {
		return fmt.Errorf("nodes: test: no %q capability registered", defaultCapabilityName)
	}

	planV, _ := sess.Artifact(artifactPlan, "text")
	planText, _ := planV.(string)

	cases, err := cap.GenerateTests(ctx, planText)
	if _, rerr := recordTool(ctx, run, "generate_tests", cases, err); rerr != nil {
		return rerr
	}

	idV, _ := sess.Fact(domainFlow, "chatflow_id")
	chatflowID, _ := idV.(string)

	predictor, ok := cap.(interface {
		Predict(ctx context.Context, chatflowID string, t domain.GeneratedTest) (domain.TestOutcome, error)
	})
	if !ok {
		return fmt.Errorf("nodes: test: capability %q does not support Predict", cap.Name())
	}

	outcomes := make([]domain.TestOutcome, 0, len(cases))
	passed := 0
	for _, c := range cases {
		outcome, perr := predictor.Predict(ctx, chatflowID, c)
		recorded, _ := recordTool(ctx, run, "predict", outcome, perr)
		outcomes = append(outcomes, outcome)
		if recorded.OK && outcome.Passed {
			passed++
		}
	}

	sess.SetArtifact(artifactTest, "outcomes", outcomes)
	sess.MergeFacts(domainEvaluate, map[string]any{
		"tests_run":    len(outcomes),
		"tests_passed": passed,
	})
	return nil
}
