package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndFailsValidationWithoutRequiredFields(t *testing.T) {
	t.Setenv("CHATAGENT_PLATFORM_BASE_URL", "")
	t.Setenv("CHATAGENT_LLM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform.base_url is required")
	assert.Contains(t, err.Error(), "llm.api_key is required")
}

func TestLoadSucceedsWithRequiredFieldsSet(t *testing.T) {
	t.Setenv("CHATAGENT_PLATFORM_BASE_URL", "https://platform.example.com/api/v1")
	t.Setenv("CHATAGENT_LLM_API_KEY", "sk-test")
	t.Setenv("CHATAGENT_LLM_DEFAULT_MODEL", "claude-sonnet-4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://platform.example.com/api/v1", cfg.Platform.BaseURL)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, DriftWarn, cfg.DriftPolicy)
	assert.Equal(t, ModeCapabilityFirst, cfg.RuntimeMode)
	assert.True(t, cfg.PatternAutoSave)
	assert.Equal(t, 300, cfg.HITLLongPollSeconds)
	assert.False(t, cfg.AutoApproveDefault)
	assert.Equal(t, 4, cfg.Budget.IterationCeiling)
	assert.Greater(t, cfg.Budget.DefaultPhaseTokens, 0)
}

func TestLoadRejectsUnknownDriftPolicy(t *testing.T) {
	t.Setenv("CHATAGENT_PLATFORM_BASE_URL", "https://platform.example.com")
	t.Setenv("CHATAGENT_LLM_API_KEY", "sk-test")
	t.Setenv("CHATAGENT_LLM_DEFAULT_MODEL", "claude-sonnet-4")
	t.Setenv("CHATAGENT_DRIFT_POLICY", "explode")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drift_policy")
}

func TestLoadBedrockRequiresRegionNotAPIKey(t *testing.T) {
	t.Setenv("CHATAGENT_PLATFORM_BASE_URL", "https://platform.example.com")
	t.Setenv("CHATAGENT_LLM_PROVIDER", "bedrock")
	t.Setenv("CHATAGENT_LLM_DEFAULT_MODEL", "anthropic.claude-3-sonnet")
	t.Setenv("CHATAGENT_LLM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aws_region is required")

	t.Setenv("CHATAGENT_LLM_AWS_REGION", "us-east-1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderBedrock, cfg.LLM.Provider)
}
