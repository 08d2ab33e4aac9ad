package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/taxonomy"
	"github.com/flowcraft/chatagent/internal/toolregistry"
)

func TestRecordSchemaRepairExceedsBudget(t *testing.T) {
	tr := NewTracker(Config{MaxSchemaRepairsPerIter: 2})
	require.NoError(t, tr.RecordSchemaRepair())
	require.NoError(t, tr.RecordSchemaRepair())

	err := tr.RecordSchemaRepair()
	require.Error(t, err)
	var be *taxonomy.BudgetExceededError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "max_schema_repairs_per_iter", be.Budget)
	assert.Equal(t, 2, be.Limit)
	assert.Equal(t, 3, be.Observed)
}

func TestRecordRetryExceedsBudget(t *testing.T) {
	tr := NewTracker(Config{MaxTotalRetriesPerIter: 1})
	require.NoError(t, tr.RecordRetry())
	err := tr.RecordRetry()
	require.Error(t, err)
	var be *taxonomy.BudgetExceededError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "max_total_retries_per_iter", be.Budget)
}

func TestCheckPatchOpsDoesNotMutateState(t *testing.T) {
	tr := NewTracker(Config{MaxPatchOpsPerIter: 5})
	require.Error(t, tr.CheckPatchOps(6, 0))
	require.Error(t, tr.CheckPatchOps(6, 0))
	require.NoError(t, tr.CheckPatchOps(5, 0))
}

func TestCheckPatchOpsUsesTighterPerIterationLimit(t *testing.T) {
	tr := NewTracker(Config{MaxPatchOpsPerIter: 50})
	require.NoError(t, tr.CheckPatchOps(12, 12), "UPDATE mode default: 12 ops fits its own ceiling")

	err := tr.CheckPatchOps(13, 12)
	require.Error(t, err, "13 ops exceeds UPDATE mode's 12-op ceiling even though the global ceiling is 50")
	var be *taxonomy.BudgetExceededError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 12, be.Limit)

	require.NoError(t, tr.CheckPatchOps(50, 0), "no per-iteration fact falls back to the global ceiling alone")
}

func TestResetIterationClearsCountersNotTokens(t *testing.T) {
	tr := NewTracker(Config{
		MaxSchemaRepairsPerIter: 1,
		PerPhaseTokens:          map[toolregistry.Phase]int{toolregistry.PhaseDiscover: 100},
	})
	require.NoError(t, tr.RecordSchemaRepair())
	tr.RecordPhaseTokens(toolregistry.PhaseDiscover, 50, 60)
	assert.Equal(t, 110, tr.PhaseTokensUsed(toolregistry.PhaseDiscover))

	tr.ResetIteration()

	require.NoError(t, tr.RecordSchemaRepair(), "repair counter should have reset")
	assert.Equal(t, 110, tr.PhaseTokensUsed(toolregistry.PhaseDiscover), "token usage accumulates across iterations")
}

func TestCheckIterationCeiling(t *testing.T) {
	tr := NewTracker(Config{IterationCeiling: 4})
	assert.False(t, tr.CheckIterationCeiling(3))
	assert.True(t, tr.CheckIterationCeiling(4))
	assert.True(t, tr.CheckIterationCeiling(5))
}

func TestRecordPhaseTokensNeverErrorsButCountsViolations(t *testing.T) {
	tr := NewTracker(Config{
		PerPhaseTokens:     map[toolregistry.Phase]int{toolregistry.PhasePlan: 100},
		DefaultPhaseTokens: 1000,
	})

	over := tr.RecordPhaseTokens(toolregistry.PhasePlan, 60, 60)
	assert.True(t, over)
	over = tr.RecordPhaseTokens(toolregistry.PhaseTest, 400, 400)
	assert.False(t, over, "phase without an explicit budget falls back to DefaultPhaseTokens")

	violations := tr.Violations()
	assert.Equal(t, 1, violations[toolregistry.PhasePlan])
	assert.Equal(t, 0, violations[toolregistry.PhaseTest])
}

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15000, cfg.PerPhaseTokens[toolregistry.PhaseDiscover])
	assert.Equal(t, 8000, cfg.PerPhaseTokens[toolregistry.PhasePlan])
	assert.Equal(t, 20000, cfg.PerPhaseTokens[toolregistry.PhasePatch])
	assert.Equal(t, 10000, cfg.PerPhaseTokens[toolregistry.PhaseTest])
	assert.Equal(t, 5000, cfg.PerPhaseTokens[toolregistry.PhaseEvaluate])
	assert.Equal(t, 25000, cfg.DefaultPhaseTokens)
	assert.Equal(t, 4, cfg.IterationCeiling)
}

func TestRateLimiterWaitConsumesBudget(t *testing.T) {
	rl := NewRateLimiter(600, 600)
	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx, 300))
	require.NoError(t, rl.Wait(ctx, 300))

	ctx2, cancel := context.WithTimeout(ctx, 1)
	defer cancel()
	err := rl.Wait(ctx2, 300)
	assert.Error(t, err, "burst exhausted, next wait should block past an expired deadline")
}

func TestRateLimiterBackoffHalvesThenFloors(t *testing.T) {
	rl := NewRateLimiter(1000, 1000)
	rl.Observe(ErrRateLimited)
	assert.InDelta(t, 500, rl.CurrentTPM(), 0.001)

	for i := 0; i < 20; i++ {
		rl.Observe(ErrRateLimited)
	}
	assert.InDelta(t, rl.minTPM, rl.CurrentTPM(), 0.001)
}

func TestRateLimiterProbeRecoversTowardCeiling(t *testing.T) {
	rl := NewRateLimiter(1000, 1000)
	rl.Observe(ErrRateLimited)
	reduced := rl.CurrentTPM()

	rl.Observe(nil)
	assert.Greater(t, rl.CurrentTPM(), reduced)

	for i := 0; i < 100; i++ {
		rl.Observe(nil)
	}
	assert.InDelta(t, 1000, rl.CurrentTPM(), 0.001)
}

func TestIsRateLimitedRecognizesExternalError429(t *testing.T) {
	err := &taxonomy.ExternalError{Endpoint: "platform.predict", StatusCode: 429}
	assert.True(t, IsRateLimited(err))

	other := &taxonomy.ExternalError{Endpoint: "platform.predict", StatusCode: 500}
	assert.False(t, IsRateLimited(other))
}

func TestEstimateTokensHasFloorAndScalesWithLength(t *testing.T) {
	assert.Equal(t, 500, EstimateTokens(0))
	assert.Greater(t, EstimateTokens(3000), EstimateTokens(300))
}
