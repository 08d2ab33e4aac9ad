// Package anthropic implements llm.Engine on top of the Anthropic Claude
// Messages API via github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

// MessagesClient is the subset of the Anthropic SDK used by the adapter,
// satisfied by *sdk.MessageService so tests can supply a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel   string
	HighModel      string
	SmallModel     string
	MaxTokens      int64
	Temperature    float64
}

// Client implements llm.Engine over Anthropic Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTokens    int64
	temperature  float64
}

// New builds an Anthropic-backed engine from an already-constructed
// MessagesClient and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs an engine using the SDK's default HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	sc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&sc.Messages, opts)
}

// Complete issues one Messages.New call and translates the result back into
// llm.Response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Response{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return llm.Response{}, mapError("anthropic.messages.new", err)
	}
	return translateResponse(msg), nil
}

func (c *Client) buildParams(req llm.Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: at least one message is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.resolveModelID(req.ModelClass)
	}
	if modelID == "" {
		return sdk.MessageNewParams{}, errors.New("anthropic: no model configured")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = int(c.maxTokens)
	}
	if maxTokens <= 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: max_tokens must be positive")
	}

	msgs, system, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	return params, nil
}

func (c *Client) resolveModelID(class llm.ModelClass) string {
	switch class {
	case llm.ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case llm.ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func encodeMessages(msgs []llm.Message) ([]sdk.MessageParam, string, error) {
	var system string
	var out []sdk.MessageParam
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system += m.Text()
			continue
		}
		blocks, err := encodeParts(m.Parts)
		if err != nil {
			return nil, "", err
		}
		switch m.Role {
		case llm.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case llm.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, "", fmt.Errorf("anthropic: unsupported role %q", m.Role)
		}
	}
	return out, system, nil
}

func encodeParts(parts []llm.Part) ([]sdk.ContentBlockParamUnion, error) {
	var out []sdk.ContentBlockParamUnion
	for _, p := range parts {
		switch v := p.(type) {
		case llm.TextPart:
			out = append(out, sdk.NewTextBlock(v.Text))
		case llm.ToolUsePart:
			out = append(out, sdk.NewToolUseBlock(v.ID, v.Input, v.Name))
		case llm.ToolResultPart:
			content, err := encodeToolResultContent(v.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, sdk.NewToolResultBlock(v.ToolUseID, content, v.IsError))
		case llm.ThinkingPart:
			// Thinking blocks are provider-issued, not round-tripped back in.
			continue
		default:
			return nil, fmt.Errorf("anthropic: unsupported part type %T", p)
		}
	}
	return out, nil
}

func encodeToolResultContent(content any) (string, error) {
	if s, ok := content.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("anthropic: encoding tool result: %w", err)
	}
	return string(b), nil
}

func encodeTools(defs []llm.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schemaJSON, err := json.Marshal(d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", d.Name, err)
		}
		var schema sdk.ToolInputSchemaParam
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", d.Name, err)
		}
		tool := sdk.ToolParam{Name: d.Name, Description: sdk.String(d.Description), InputSchema: schema}
		out = append(out, sdk.ToolUnionParamOfTool(tool.InputSchema, tool.Name))
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) llm.Response {
	var parts []llm.Part
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, llm.TextPart{Text: block.Text})
			}
		case "tool_use":
			var input map[string]any
			_ = json.Unmarshal(block.Input, &input)
			parts = append(parts, llm.ToolUsePart{ID: block.ID, Name: block.Name, Input: input})
		case "thinking":
			parts = append(parts, llm.ThinkingPart{Text: block.Thinking, Signature: block.Signature})
		}
	}
	return llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Parts: parts},
		Usage:      llm.TokenUsage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)},
		StopReason: string(msg.StopReason),
	}
}

func mapError(endpoint string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &taxonomy.ExternalError{
			Endpoint:   endpoint,
			StatusCode: apiErr.StatusCode,
			Transient:  apiErr.StatusCode == 429 || apiErr.StatusCode >= 500,
			Cause:      err,
		}
	}
	return &taxonomy.ExternalError{Endpoint: endpoint, Transient: true, Cause: err}
}
