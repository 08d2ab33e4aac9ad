package patchir

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
)

// genOpChain produces a well-formed op list guaranteed to compile cleanly:
// one chatOpenAI node, one toolAgent node, a connecting edge, and a random
// modelName string on the first node. Every generated chain must validate,
// so the property below asserts Compile never rejects it.
func genOpChain() gopter.Gen {
	return gen.AlphaString().Map(func(modelName string) []Op {
		if modelName == "" {
			modelName = "gpt-4o"
		}
		return []Op{
			{AddNode: &AddNode{NodeID: "llm-1", NodeType: "chatOpenAI"}},
			{AddNode: &AddNode{NodeID: "agent-1", NodeType: "toolAgent"}},
			{SetParam: &SetParam{NodeID: "llm-1", ParamName: "modelName", Value: modelName}},
			{Connect: &Connect{SourceID: "llm-1", SourceAnchor: "output", TargetID: "agent-1", TargetAnchor: "model"}},
		}
	})
}

func TestCompileWellFormedChainsAlwaysValidate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("compile(ops) validates for any well-formed AddNode/SetParam/Connect chain", prop.ForAll(
		func(ops []Op) bool {
			result := Compile(context.Background(), nil, ops, testSchemas(), nil)
			if !result.OK() {
				return false
			}
			errs := ValidateFlowData(context.Background(), result.ProposedFlowData, nil)
			return len(errs) == 0
		},
		genOpChain(),
	))

	properties.TestingRun(t)
}

func TestCompileIsIdempotentUnderRepeatedCompilation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("compiling the same op list twice yields identical proposed_flow_data", prop.ForAll(
		func(ops []Op) bool {
			r1 := Compile(context.Background(), nil, ops, testSchemas(), nil)
			r2 := Compile(context.Background(), nil, ops, testSchemas(), nil)
			if r1.OK() != r2.OK() {
				return false
			}
			if !r1.OK() {
				return true
			}
			return fmt.Sprintf("%+v", r1.ProposedFlowData) == fmt.Sprintf("%+v", r2.ProposedFlowData)
		},
		genOpChain(),
	))

	properties.TestingRun(t)
}

func TestCompileRejectsMismatchedAnchorTypes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	schemas := fakeSchemas{schemas: map[string]nodeschema.Schema{
		"source": {
			Name:          "source",
			OutputAnchors: []nodeschema.OutputAnchor{{Name: "output", Type: "StringPrompt"}},
		},
		"sink": {
			Name: "sink",
			InputAnchors: []nodeschema.Anchor{
				{Name: "in", AcceptedTypes: []string{"BaseChatModel"}},
			},
		},
	}}

	properties.Property("connecting incompatible anchor types always fails structurally", prop.ForAll(
		func(_ int) bool {
			ops := []Op{
				{AddNode: &AddNode{NodeID: "s1", NodeType: "source"}},
				{AddNode: &AddNode{NodeID: "s2", NodeType: "sink"}},
				{Connect: &Connect{SourceID: "s1", SourceAnchor: "output", TargetID: "s2", TargetAnchor: "in"}},
			}
			result := Compile(context.Background(), nil, ops, schemas, nil)
			if result.OK() {
				return false
			}
			return result.Errors[0].Code == CodeStructural
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
