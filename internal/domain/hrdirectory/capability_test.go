package hrdirectory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/domain"
	"github.com/flowcraft/chatagent/internal/domain/chatflow"
)

func TestImplementsCapabilityInterface(t *testing.T) {
	var _ domain.Capability = New()
	assert.Equal(t, "hrdirectory", New().Name())
}

func TestDiscoverMatchesOnNameDepartmentOrTitle(t *testing.T) {
	c := New()

	res, err := c.Discover(context.Background(), "platform")
	require.NoError(t, err)

	records, ok := res.Facts["employee_records"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, records)
	for _, r := range records {
		assert.Equal(t, "Platform", r["department"])
	}
	assert.Equal(t, len(directory), res.Facts["directory_size"])
}

func TestDiscoverFallsBackToFirstRecordsWhenNothingMatches(t *testing.T) {
	c := New()

	res, err := c.Discover(context.Background(), "no such team exists")
	require.NoError(t, err)

	records, ok := res.Facts["employee_records"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, records, 3)
}

func TestDiscoverCapsAtThreeMatches(t *testing.T) {
	c := New()

	res, err := c.Discover(context.Background(), "")
	require.NoError(t, err)

	records, ok := res.Facts["employee_records"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, records, 3)
}

func TestRemainingMethodsAreNoOps(t *testing.T) {
	c := New()
	ctx := context.Background()

	ops, err := c.CompileOps(ctx, "irrelevant plan", nil)
	require.NoError(t, err)
	assert.Nil(t, ops.Ops)

	valid, err := c.Validate(ctx, nil)
	require.NoError(t, err)
	assert.True(t, valid.OK)

	tests, err := c.GenerateTests(ctx, "irrelevant plan")
	require.NoError(t, err)
	assert.Empty(t, tests)

	verdict, err := c.Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", verdict.Verdict)
}

func TestRegistersUnderOwnNameAlongsideAnotherCapability(t *testing.T) {
	reg := domain.NewRegistry()
	require.NoError(t, reg.Register(chatflow.New(nil, nil, nil)))
	require.NoError(t, reg.Register(New()))

	got, ok := reg.Get("hrdirectory")
	require.True(t, ok)
	assert.Equal(t, "hrdirectory", got.Name())

	other, ok := reg.Get("chatflow")
	require.True(t, ok)
	assert.Equal(t, "chatflow", other.Name())
}
