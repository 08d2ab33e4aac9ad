// Package openai implements llm.Engine on top of the OpenAI Chat
// Completions API via github.com/openai/openai-go.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

// ChatClient is the subset of the OpenAI SDK used by the adapter, satisfied
// by the client's Chat.Completions service.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int64
	Temperature  float64
}

// Client implements llm.Engine over OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTokens    int64
	temperature  float64
}

// New builds an OpenAI-backed engine from an already-constructed ChatClient.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{
		chat:         chat,
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
		return nil, errors.New("openai: api key is required")
	}
	sc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&sc.Chat.Completions, opts)
}

// Complete issues one chat completion and translates the result.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return llm.Response{}, mapError("openai.chat.completions.new", err)
	}
	return translateResponse(resp)
}

func (c *Client) buildParams(req llm.Request) (sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.ChatCompletionNewParams{}, errors.New("openai: at least one message is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.resolveModelID(req.ModelClass)
	}
	if modelID == "" {
		return sdk.ChatCompletionNewParams{}, errors.New("openai: no model configured")
	}

	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.ChatCompletionNewParams{}, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return sdk.ChatCompletionNewParams{}, err
	}

	params := sdk.ChatCompletionNewParams{
		Model:    modelID,
		Messages: msgs,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = int(c.maxTokens)
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTokens))
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

func encodeMessages(msgs []llm.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	var out []sdk.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		text := m.Text()
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, sdk.SystemMessage(text))
		case llm.RoleUser:
			hasResults := false
			for _, p := range m.Parts {
				if tr, ok := p.(llm.ToolResultPart); ok {
					hasResults = true
					out = append(out, sdk.ToolMessage(fmt.Sprint(tr.Content), tr.ToolUseID))
				}
			}
			if text != "" || !hasResults {
				out = append(out, sdk.UserMessage(text))
			}
		case llm.RoleAssistant:
			assistantMsg, err := encodeAssistantMessage(m)
			if err != nil {
				return nil, err
			}
			out = append(out, assistantMsg)
		default:
			return nil, fmt.Errorf("openai: unsupported role %q", m.Role)
		}
	}
	return out, nil
}

func encodeAssistantMessage(m llm.Message) (sdk.ChatCompletionMessageParamUnion, error) {
	msg := sdk.AssistantMessage(m.Text())
	for _, u := range m.ToolUses() {
		argsJSON, err := json.Marshal(u.Input)
		if err != nil {
			return sdk.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: encoding tool call args: %w", err)
		}
		msg.OfAssistant.ToolCalls = append(msg.OfAssistant.ToolCalls, sdk.ChatCompletionMessageToolCallParam{
			ID: u.ID,
			Function: sdk.ChatCompletionMessageToolCallFunctionParam{
				Name:      u.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	return msg, nil
}

func encodeTools(defs []llm.ToolDefinition) ([]sdk.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		schemaJSON, err := json.Marshal(d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q schema: %w", d.Name, err)
		}
		var params shared.FunctionParameters
		if err := json.Unmarshal(schemaJSON, &params); err != nil {
			return nil, fmt.Errorf("openai: tool %q schema: %w", d.Name, err)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func translateResponse(resp *sdk.ChatCompletion) (llm.Response, error) {
	if len(resp.Choices) == 0 {
		return llm.Response{}, errors.New("openai: response has no choices")
	}
	choice := resp.Choices[0]
	var parts []llm.Part
	if choice.Message.Content != "" {
		parts = append(parts, llm.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		parts = append(parts, llm.ToolUsePart{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Parts: parts},
		Usage:      llm.TokenUsage{InputTokens: int(resp.Usage.PromptTokens), OutputTokens: int(resp.Usage.CompletionTokens)},
		StopReason: string(choice.FinishReason),
	}, nil
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
