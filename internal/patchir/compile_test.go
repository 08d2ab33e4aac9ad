package patchir

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
)

type fakeSchemas struct {
	schemas map[string]nodeschema.Schema
}

func (f fakeSchemas) GetOrRepair(_ context.Context, name string) (nodeschema.Schema, error) {
	sc, ok := f.schemas[name]
	if !ok {
		return nodeschema.Schema{}, assert.AnError
	}
	return sc, nil
}

type fakeCredentials struct {
	known map[string]string
}

func (f fakeCredentials) Resolve(_ context.Context, id string) (string, bool) {
	t, ok := f.known[id]
	return t, ok
}

func testSchemas() fakeSchemas {
	return fakeSchemas{schemas: map[string]nodeschema.Schema{
		"chatOpenAI": {
			Name: "chatOpenAI", Version: "1", Label: "Chat Models",
			InputParams: []nodeschema.Param{
				{Name: "modelName", Type: "string", Default: "gpt-4"},
			},
			OutputAnchors: []nodeschema.OutputAnchor{{Name: "output", Type: "BaseChatModel"}},
			Credential:    &nodeschema.CredentialDecl{Type: "openAIApi"},
		},
		"toolAgent": {
			Name: "toolAgent", Version: "1", Label: "Agents",
			InputAnchors: []nodeschema.Anchor{
				{Name: "model", AcceptedTypes: []string{"BaseChatModel"}},
				{Name: "tools", AcceptedTypes: []string{"Tool"}, Optional: true},
			},
			OutputAnchors: []nodeschema.OutputAnchor{{Name: "options", Type: "AgentExecutor|Runnable"}},
		},
	}}
}

func TestCompileAddNodeSetParamConnect(t *testing.T) {
	ops := []Op{
		{AddNode: &AddNode{NodeID: "llm-1", NodeType: "chatOpenAI"}},
		{AddNode: &AddNode{NodeID: "agent-1", NodeType: "toolAgent"}},
		{SetParam: &SetParam{NodeID: "llm-1", ParamName: "modelName", Value: "gpt-4o"}},
		{Connect: &Connect{SourceID: "llm-1", SourceAnchor: "output", TargetID: "agent-1", TargetAnchor: "model"}},
	}
	result := Compile(context.Background(), nil, ops, testSchemas(), nil)
	require.True(t, result.OK(), "unexpected errors: %v", result.Errors)
	require.Len(t, result.ProposedFlowData.Nodes, 2)
	require.Len(t, result.ProposedFlowData.Edges, 1)

	llm := result.ProposedFlowData.Nodes[0]
	assert.Equal(t, "gpt-4o", llm.Data.Inputs["modelName"])

	edge := result.ProposedFlowData.Edges[0]
	parsedSrc, err := ParseHandle(edge.SourceHandle)
	require.NoError(t, err)
	assert.Equal(t, "llm-1", parsedSrc.NodeID)
	assert.Equal(t, DirectionOutput, parsedSrc.Direction)

	assert.ElementsMatch(t, []string{"llm-1", "agent-1"}, result.DiffSummary.NodesAdded)
}

func TestCompileUnknownNodeTypeIsSchemaMismatch(t *testing.T) {
	ops := []Op{{AddNode: &AddNode{NodeID: "n1", NodeType: "doesNotExist"}}}
	result := Compile(context.Background(), nil, ops, testSchemas(), nil)
	require.False(t, result.OK())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeSchemaMismatch, result.Errors[0].Code)
}

func TestCompileMultiOutputAnchorSelection(t *testing.T) {
	schemas := testSchemas()
	schemas.schemas["agentSink"] = nodeschema.Schema{
		Name:         "agentSink",
		InputAnchors: []nodeschema.Anchor{{Name: "agent", AcceptedTypes: []string{"AgentExecutor"}}},
	}
	ops := []Op{
		{AddNode: &AddNode{NodeID: "llm-1", NodeType: "chatOpenAI"}},
		{AddNode: &AddNode{NodeID: "agent-1", NodeType: "toolAgent"}},
		{AddNode: &AddNode{NodeID: "sink-1", NodeType: "agentSink"}},
		{Connect: &Connect{SourceID: "llm-1", SourceAnchor: "output", TargetID: "agent-1", TargetAnchor: "model"}},
		{Connect: &Connect{SourceID: "agent-1", SourceAnchor: "AgentExecutor", TargetID: "sink-1", TargetAnchor: "agent"}},
	}
	result := Compile(context.Background(), nil, ops, schemas, nil)
	require.True(t, result.OK(), "unexpected errors: %v", result.Errors)
	assert.Equal(t, "AgentExecutor", result.ProposedFlowData.Nodes[1].Outputs["output"])
}

func TestCompileRequiredAnchorMissingFailsValidation(t *testing.T) {
	schemas := testSchemas()
	schemas.schemas["toolAgent"] = nodeschema.Schema{
		Name: "toolAgent",
		InputAnchors: []nodeschema.Anchor{
			{Name: "model", AcceptedTypes: []string{"BaseChatModel"}, Optional: false},
		},
	}
	ops := []Op{{AddNode: &AddNode{NodeID: "agent-1", NodeType: "toolAgent"}}}
	result := Compile(context.Background(), nil, ops, schemas, nil)
	require.False(t, result.OK())
	assert.Equal(t, CodeStructural, result.Errors[0].Code)
}

func TestCompileBindCredentialDuplicatesBothFields(t *testing.T) {
	ops := []Op{
		{AddNode: &AddNode{NodeID: "llm-1", NodeType: "chatOpenAI"}},
		{BindCredential: &BindCredential{NodeID: "llm-1", CredentialID: "cred-abc", CredentialType: "openAIApi"}},
	}
	creds := fakeCredentials{known: map[string]string{"cred-abc": "openAIApi"}}
	result := Compile(context.Background(), nil, ops, testSchemas(), creds)
	require.True(t, result.OK(), "unexpected errors: %v", result.Errors)
	node := result.ProposedFlowData.Nodes[0]
	assert.Equal(t, "cred-abc", node.Data.Credential)
	assert.Equal(t, "cred-abc", node.Data.Inputs["credential"])
}

func TestCompileUnresolvedCredentialFails(t *testing.T) {
	ops := []Op{
		{AddNode: &AddNode{NodeID: "llm-1", NodeType: "chatOpenAI"}},
		{BindCredential: &BindCredential{NodeID: "llm-1", CredentialID: "cred-missing", CredentialType: "openAIApi"}},
	}
	creds := fakeCredentials{known: map[string]string{}}
	result := Compile(context.Background(), nil, ops, testSchemas(), creds)
	require.False(t, result.OK())
	assert.Equal(t, CodeOther, result.Errors[0].Code)
}

func TestCompileIsDeterministic(t *testing.T) {
	ops := []Op{
		{AddNode: &AddNode{NodeID: "llm-1", NodeType: "chatOpenAI"}},
		{AddNode: &AddNode{NodeID: "agent-1", NodeType: "toolAgent"}},
		{Connect: &Connect{SourceID: "llm-1", SourceAnchor: "output", TargetID: "agent-1", TargetAnchor: "model"}},
	}
	r1 := Compile(context.Background(), nil, ops, testSchemas(), nil)
	r2 := Compile(context.Background(), nil, ops, testSchemas(), nil)
	require.True(t, r1.OK())
	require.True(t, r2.OK())
	assert.Equal(t, r1.ProposedFlowData, r2.ProposedFlowData)
}

func TestCompileOnBaseGraphDoesNotMutateBase(t *testing.T) {
	base := FlowData{Nodes: []FlowNode{{
		ID: "existing", NodeType: "chatOpenAI",
		InputParams: []nodeschema.Param{{Name: "modelName", Type: "string"}},
		Data:        NodeData{Inputs: map[string]any{"modelName": "gpt-4"}},
	}}}
	ops := []Op{{SetParam: &SetParam{NodeID: "existing", ParamName: "modelName", Value: "gpt-4o"}}}
	schemas := testSchemas()

	result := Compile(context.Background(), &base, ops, schemas, nil)
	require.True(t, result.OK(), "unexpected errors: %v", result.Errors)
	assert.Equal(t, "gpt-4", base.Nodes[0].Data.Inputs["modelName"], "Compile must not mutate its base argument")
	assert.Equal(t, "gpt-4o", result.ProposedFlowData.Nodes[0].Data.Inputs["modelName"])
}
