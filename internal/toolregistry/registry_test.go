package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, args map[string]any) (any, error) {
	return args, nil
}

func TestRegisterRejectsNamespaceCollision(t *testing.T) {
	r := New()
	def := ToolDef{Name: "search", Phases: []Phase{PhaseDiscover}}
	require.NoError(t, r.Register("platform", def, echoHandler))
	err := r.Register("platform", def, echoHandler)
	assert.Error(t, err)
}

func TestToolDefsFiltersStrictlyByPhase(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("platform", ToolDef{Name: "list_schemas", Phases: []Phase{PhaseDiscover}}, echoHandler))
	require.NoError(t, r.Register("patch", ToolDef{Name: "add_node", Phases: []Phase{PhasePatch}}, echoHandler))

	discover := r.ToolDefs(PhaseDiscover)
	require.Len(t, discover, 1)
	assert.Equal(t, "list_schemas", discover[0].Name)

	patch := r.ToolDefs(PhasePatch)
	require.Len(t, patch, 1)
	assert.Equal(t, "add_node", patch[0].Name)
}

func TestExecutorIsDualKeyed(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("platform", ToolDef{Name: "search", Phases: []Phase{PhaseDiscover}}, echoHandler))

	exec := r.Executor(PhaseDiscover)
	_, hasQualified := exec["platform.search"]
	_, hasBare := exec["search"]
	assert.True(t, hasQualified)
	assert.True(t, hasBare)
}

func TestExecutorBareNameCollisionFirstRegisteredWins(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("platform", ToolDef{Name: "search", Phases: []Phase{PhaseDiscover}}, func(_ context.Context, _ map[string]any) (any, error) {
		return "platform-search", nil
	}))
	require.NoError(t, r.Register("patterns", ToolDef{Name: "search", Phases: []Phase{PhaseDiscover}}, func(_ context.Context, _ map[string]any) (any, error) {
		return "patterns-search", nil
	}))

	result := r.Call(context.Background(), "search", nil)
	assert.Equal(t, "platform-search", result.Data)
}

func TestCallValidatesArgsAgainstSchema(t *testing.T) {
	r := New()
	schema := []byte(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`)
	require.NoError(t, r.Register("platform", ToolDef{Name: "create_chatflow", Phases: []Phase{PhasePatch}, ParamsSchema: schema}, echoHandler))

	result := r.Call(context.Background(), "platform.create_chatflow", map[string]any{})
	assert.False(t, result.OK)
	assert.Equal(t, "error", result.Error.Type)

	result = r.Call(context.Background(), "platform.create_chatflow", map[string]any{"name": "Trip Planner"})
	assert.True(t, result.OK)
}

func TestCallUnknownToolWraps(t *testing.T) {
	r := New()
	result := r.Call(context.Background(), "nope", nil)
	assert.False(t, result.OK)
	assert.Contains(t, result.Summary, "failed")
}

func TestContextRendersToolListing(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("platform", ToolDef{Name: "search", Description: "search chatflows", Phases: []Phase{PhaseDiscover}}, echoHandler))
	ctx := r.Context(PhaseDiscover)
	assert.Contains(t, ctx, "search")
	assert.Contains(t, ctx, "search chatflows")
}
