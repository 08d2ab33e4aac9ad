package pattern

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/patchir"
)

func TestIsCompatibleEmptyFingerprintAlwaysMatches(t *testing.T) {
	p := Pattern{SchemaFingerprint: ""}
	assert.True(t, p.IsCompatible("anything"))
}

func TestIsCompatibleRequiresExactMatch(t *testing.T) {
	p := Pattern{SchemaFingerprint: "abc123"}
	assert.True(t, p.IsCompatible("abc123"))
	assert.False(t, p.IsCompatible("def456"))
}

func TestMatchesNodeTypesOverlap(t *testing.T) {
	p := Pattern{NodeTypes: []string{"chatOpenAI", "retriever"}}
	assert.True(t, p.MatchesNodeTypes(nil))
	assert.True(t, p.MatchesNodeTypes([]string{"retriever", "toolAgent"}))
	assert.False(t, p.MatchesNodeTypes([]string{"toolAgent"}))
}

func TestApplyAsBaseGraphRejectsIncompatiblePattern(t *testing.T) {
	p := Pattern{SchemaFingerprint: "stale"}
	_, err := ApplyAsBaseGraph(p, "current")
	require.ErrorIs(t, err, ErrNotCompatible)
}

func TestApplyAsBaseGraphDecodesFlowData(t *testing.T) {
	flow := patchir.FlowData{Nodes: []patchir.FlowNode{{ID: "n1", NodeType: "chatOpenAI"}}}
	raw, err := json.Marshal(flow)
	require.NoError(t, err)

	p := Pattern{SchemaFingerprint: "", FlowData: raw}
	got, err := ApplyAsBaseGraph(p, "current")
	require.NoError(t, err)
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, "n1", got.Nodes[0].ID)
}

func TestApplyAsBaseGraphEmptyFlowDataReturnsZeroValue(t *testing.T) {
	p := Pattern{}
	got, err := ApplyAsBaseGraph(p, "anything")
	require.NoError(t, err)
	assert.Empty(t, got.Nodes)
}
