package llm

import (
	"context"
	"errors"
)

// ModelClass selects a model family by capability/cost tier rather than a
// provider-specific identifier, so a node can ask for "small" or
// "high-reasoning" without knowing which provider is configured.
type ModelClass string

const (
	ModelClassDefault       ModelClass = "default"
	ModelClassSmall         ModelClass = "small"
	ModelClassHighReasoning ModelClass = "high-reasoning"
)

// ToolDefinition describes one tool offered to the model for a single call,
// derived from toolregistry.ToolDefs for the node's phase.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema any
}

// ToolChoiceMode controls how a request asks the model to use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
)

// ToolChoice optionally constrains tool use for a Request.
type ToolChoice struct {
	Mode ToolChoiceMode
}

// TokenUsage tracks token counts for one completion, fed directly into
// internal/budget.Tracker.RecordPhaseTokens by the node that issued the call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Request captures one completion call.
type Request struct {
	Model       string
	ModelClass  ModelClass
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  *ToolChoice
	MaxTokens   int
	Temperature float64
}

// Response is the result of one completion call.
type Response struct {
	Message    Message
	Usage      TokenUsage
	StopReason string
}

// Engine is the provider-agnostic interface every node calls through. A
// session runtime is constructed with one Engine per configured provider,
// typically wrapped by gateway.Server for cross-cutting retry/redaction/
// rate-limit behavior.
type Engine interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ErrStreamingUnsupported reports that streaming is not supported. None of
// this module's provider adapters has a Stream method, and nothing in the
// module returns this error.
var ErrStreamingUnsupported = errors.New("llm: streaming not supported")
