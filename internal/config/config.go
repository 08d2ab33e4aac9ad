// Package config loads the environment-driven Config every runtime knob in
// spec §6 is read from: checkpointer DSN, schema drift policy, runtime
// mode, pattern auto-save, per-phase token budgets, iteration ceiling,
// HITL long-poll seconds, and the auto_approve default for non-interactive
// callers. Grounded on the layered viper construction in the retrieval
// pack's gateway config package (defaults → file → environment override),
// narrowed to environment-only since this runtime has no local config file
// of its own.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/flowcraft/chatagent/internal/budget"
	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/toolregistry"
)

// DriftPolicy governs what happens when the node-schema fingerprint
// changes between successive iterations of one session.
type DriftPolicy string

const (
	DriftWarn    DriftPolicy = "warn"
	DriftFail    DriftPolicy = "fail"
	DriftRefresh DriftPolicy = "refresh"
)

// RuntimeMode selects how a session resolves a domain.Capability.
type RuntimeMode string

const (
	// ModeCapabilityFirst resolves against the registered domain.Capability
	// set; this is the default.
	ModeCapabilityFirst RuntimeMode = "capability-first"
	// ModeCompatLegacy is reserved for a future non-capability routing
	// path; accepted as a valid value but not otherwise implemented.
	ModeCompatLegacy RuntimeMode = "compat-legacy"
)

// LLMProvider selects which internal/llm adapter backs the session engine.
type LLMProvider string

const (
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderBedrock   LLMProvider = "bedrock"
)

type (
	// Config is the fully-resolved, validated process configuration.
	Config struct {
		Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
		Events     EventsConfig     `mapstructure:"events"`
		Platform   PlatformConfig   `mapstructure:"platform"`
		LLM        LLMConfig        `mapstructure:"llm"`
		RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`

		DriftPolicy     DriftPolicy `mapstructure:"drift_policy"`
		RuntimeMode     RuntimeMode `mapstructure:"runtime_mode"`
		PatternAutoSave bool        `mapstructure:"pattern_auto_save"`

		Budget budget.Config `mapstructure:"-"`

		HITLLongPollSeconds int  `mapstructure:"hitl_long_poll_seconds"`
		AutoApproveDefault  bool `mapstructure:"auto_approve_default"`
	}

	// CheckpointConfig points the session store at its backing Mongo
	// instance. Empty DSN means "use internal/checkpoint/inmem" (tests,
	// local runs).
	CheckpointConfig struct {
		DSN        string `mapstructure:"dsn"`
		Database   string `mapstructure:"database"`
		Collection string `mapstructure:"collection"`
	}

	// EventsConfig points the append-only event log at Mongo and, when
	// RedisURL is set, mirrors every appended event to a per-session
	// Redis Pub/Sub channel for live subscribers.
	EventsConfig struct {
		DSN        string `mapstructure:"dsn"`
		Database   string `mapstructure:"database"`
		Collection string `mapstructure:"collection"`
		RedisURL   string `mapstructure:"redis_url"`
	}

	// PlatformConfig binds internal/platform.Client to the chatflow
	// platform's REST API.
	PlatformConfig struct {
		BaseURL     string        `mapstructure:"base_url"`
		BearerToken string        `mapstructure:"bearer_token"`
		Timeout     time.Duration `mapstructure:"timeout"`
	}

	// LLMConfig selects and authenticates the internal/llm adapter used
	// for every staged-graph node's completions.
	LLMConfig struct {
		Provider     LLMProvider `mapstructure:"provider"`
		APIKey       string      `mapstructure:"api_key"`
		DefaultModel string      `mapstructure:"default_model"`
		HighModel    string      `mapstructure:"high_model"`
		SmallModel   string      `mapstructure:"small_model"`
		MaxTokens    int64       `mapstructure:"max_tokens"`
		Temperature  float64     `mapstructure:"temperature"`
		// AWSRegion is only consulted when Provider is ProviderBedrock.
		AWSRegion string `mapstructure:"aws_region"`
	}

	// RateLimitConfig seeds internal/budget.RateLimiter.
	RateLimitConfig struct {
		InitialTokensPerMinute float64 `mapstructure:"initial_tpm"`
		MaxTokensPerMinute     float64 `mapstructure:"max_tpm"`
	}
)

// Model implements internal/graph/nodes.ModelSelector, resolving a model
// class to this process's configured identifier. SmallModel/HighModel fall
// back to DefaultModel when left unset, so a deployment only has to name
// one model to get a working graph.
func (c LLMConfig) Model(class llm.ModelClass) string {
	switch class {
	case llm.ModelClassSmall:
		if c.SmallModel != "" {
			return c.SmallModel
		}
	case llm.ModelClassHighReasoning:
		if c.HighModel != "" {
			return c.HighModel
		}
	}
	return c.DefaultModel
}

// Load reads configuration from the process environment, applying the
// spec's defaults for every knob it doesn't set. Environment variables are
// read under the CHATAGENT_ prefix with underscores joining nested keys,
// e.g. CHATAGENT_PLATFORM_BASE_URL, CHATAGENT_LLM_PROVIDER.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind every leaf key explicitly: viper's AutomaticEnv only resolves a
	// key once something has asked for it by name, and Unmarshal alone
	// never asks.
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Budget = budget.Config{
		PerPhaseTokens: map[toolregistry.Phase]int{
			toolregistry.PhaseDiscover: v.GetInt("budget.discover_tokens"),
			toolregistry.PhasePlan:     v.GetInt("budget.plan_tokens"),
			toolregistry.PhasePatch:    v.GetInt("budget.patch_tokens"),
			toolregistry.PhaseTest:     v.GetInt("budget.test_tokens"),
			toolregistry.PhaseEvaluate: v.GetInt("budget.evaluate_tokens"),
		},
		DefaultPhaseTokens:      v.GetInt("budget.default_tokens"),
		MaxSchemaRepairsPerIter: v.GetInt("budget.max_schema_repairs_per_iter"),
		MaxTotalRetriesPerIter:  v.GetInt("budget.max_total_retries_per_iter"),
		MaxPatchOpsPerIter:      v.GetInt("budget.max_patch_ops_per_iter"),
		IterationCeiling:        v.GetInt("budget.iteration_ceiling"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envKeys = []string{
	"checkpoint.dsn", "checkpoint.database", "checkpoint.collection",
	"events.dsn", "events.database", "events.collection", "events.redis_url",
	"platform.base_url", "platform.bearer_token", "platform.timeout",
	"llm.provider", "llm.api_key", "llm.default_model", "llm.high_model",
	"llm.small_model", "llm.max_tokens", "llm.temperature", "llm.aws_region",
	"rate_limit.initial_tpm", "rate_limit.max_tpm",
	"drift_policy", "runtime_mode", "pattern_auto_save",
	"hitl_long_poll_seconds", "auto_approve_default",
	"budget.discover_tokens", "budget.plan_tokens", "budget.patch_tokens",
	"budget.test_tokens", "budget.evaluate_tokens", "budget.default_tokens",
	"budget.max_schema_repairs_per_iter", "budget.max_total_retries_per_iter",
	"budget.max_patch_ops_per_iter", "budget.iteration_ceiling",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("checkpoint.database", "chatagent")
	v.SetDefault("checkpoint.collection", "chatagent_sessions")

	v.SetDefault("events.database", "chatagent")
	v.SetDefault("events.collection", "session_events")

	v.SetDefault("platform.timeout", 30*time.Second)

	v.SetDefault("llm.provider", string(ProviderAnthropic))
	v.SetDefault("llm.max_tokens", int64(4096))
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("rate_limit.initial_tpm", 60000.0)
	v.SetDefault("rate_limit.max_tpm", 240000.0)

	v.SetDefault("drift_policy", string(DriftWarn))
	v.SetDefault("runtime_mode", string(ModeCapabilityFirst))
	v.SetDefault("pattern_auto_save", true)

	v.SetDefault("hitl_long_poll_seconds", 300)
	v.SetDefault("auto_approve_default", false)

	def := budget.DefaultConfig()
	v.SetDefault("budget.discover_tokens", def.PerPhaseTokens[toolregistry.PhaseDiscover])
	v.SetDefault("budget.plan_tokens", def.PerPhaseTokens[toolregistry.PhasePlan])
	v.SetDefault("budget.patch_tokens", def.PerPhaseTokens[toolregistry.PhasePatch])
	v.SetDefault("budget.test_tokens", def.PerPhaseTokens[toolregistry.PhaseTest])
	v.SetDefault("budget.evaluate_tokens", def.PerPhaseTokens[toolregistry.PhaseEvaluate])
	v.SetDefault("budget.default_tokens", def.DefaultPhaseTokens)
	v.SetDefault("budget.max_schema_repairs_per_iter", def.MaxSchemaRepairsPerIter)
	v.SetDefault("budget.max_total_retries_per_iter", def.MaxTotalRetriesPerIter)
	v.SetDefault("budget.max_patch_ops_per_iter", def.MaxPatchOpsPerIter)
	v.SetDefault("budget.iteration_ceiling", def.IterationCeiling)
}

// Validate rejects a Config with missing required fields or an
// out-of-range enum, surfacing every problem at once rather than one per
// Load call.
func (c *Config) Validate() error {
	var problems []string

	switch c.DriftPolicy {
	case DriftWarn, DriftFail, DriftRefresh:
	default:
		problems = append(problems, fmt.Sprintf("drift_policy: unknown value %q", c.DriftPolicy))
	}

	switch c.RuntimeMode {
	case ModeCapabilityFirst, ModeCompatLegacy:
	default:
		problems = append(problems, fmt.Sprintf("runtime_mode: unknown value %q", c.RuntimeMode))
	}

	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderBedrock:
	default:
		problems = append(problems, fmt.Sprintf("llm.provider: unknown value %q", c.LLM.Provider))
	}
	if c.LLM.Provider != ProviderBedrock && c.LLM.APIKey == "" {
		problems = append(problems, "llm.api_key is required for providers other than bedrock")
	}
	if c.LLM.Provider == ProviderBedrock && c.LLM.AWSRegion == "" {
		problems = append(problems, "llm.aws_region is required when llm.provider is bedrock")
	}
	if c.LLM.DefaultModel == "" {
		problems = append(problems, "llm.default_model is required")
	}

	if c.Platform.BaseURL == "" {
		problems = append(problems, "platform.base_url is required")
	}

	if c.HITLLongPollSeconds <= 0 {
		problems = append(problems, "hitl_long_poll_seconds must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
