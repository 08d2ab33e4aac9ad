// Package bedrock implements llm.Engine on top of the AWS Bedrock Converse
// API via github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

// RuntimeClient is the subset of the AWS Bedrock runtime client used by the
// adapter, satisfied by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float32
}

// Client implements llm.Engine over AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTokens    int
	temperature  float32
}

// New builds a Bedrock-backed engine from an already-constructed runtime
// client and options.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Complete issues one Converse call and translates the response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	input, err := c.buildInput(req)
	if err != nil {
		return llm.Response{}, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return llm.Response{}, mapError("bedrock.converse", err)
	}
	return translateResponse(out)
}

func (c *Client) buildInput(req llm.Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: at least one message is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.resolveModelID(req.ModelClass)
	}
	if modelID == "" {
		return nil, errors.New("bedrock: no model configured")
	}

	messages, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	toolConfig, err := encodeToolConfig(req.Tools)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = float64(c.temperature)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	inferCfg := &brtypes.InferenceConfiguration{}
	if maxTokens > 0 {
		v := int32(maxTokens)
		inferCfg.MaxTokens = &v
	}
	if temp > 0 {
		v := float32(temp)
		inferCfg.Temperature = &v
	}
	input.InferenceConfig = inferCfg
	return input, nil
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

func encodeMessages(msgs []llm.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	var out []brtypes.Message
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text()})
			continue
		}
		blocks, err := encodeParts(m.Parts)
		if err != nil {
			return nil, nil, err
		}
		role := brtypes.ConversationRoleUser
		if m.Role == llm.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out, system, nil
}

func encodeParts(parts []llm.Part) ([]brtypes.ContentBlock, error) {
	var out []brtypes.ContentBlock
	for _, p := range parts {
		switch v := p.(type) {
		case llm.TextPart:
			out = append(out, &brtypes.ContentBlockMemberText{Value: v.Text})
		case llm.ToolUsePart:
			out = append(out, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(v.ID),
					Name:      aws.String(v.Name),
					Input:     document.NewLazyDocument(v.Input),
				},
			})
		case llm.ToolResultPart:
			status := brtypes.ToolResultStatusSuccess
			if v.IsError {
				status = brtypes.ToolResultStatusError
			}
			content, err := encodeToolResultContent(v.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(v.ToolUseID),
					Status:    status,
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: content}},
				},
			})
		case llm.ThinkingPart:
			continue
		default:
			return nil, fmt.Errorf("bedrock: unsupported part type %T", p)
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
		return "", fmt.Errorf("bedrock: encoding tool result: %w", err)
	}
	return string(b), nil
}

func encodeToolConfig(defs []llm.ToolDefinition) (*brtypes.ToolConfiguration, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpec{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(d.InputSchema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}, nil
}

func translateResponse(out *bedrockruntime.ConverseOutput) (llm.Response, error) {
	member, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return llm.Response{}, errors.New("bedrock: response message is missing")
	}
	var parts []llm.Part
	for _, block := range member.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			parts = append(parts, llm.TextPart{Text: b.Value})
		case *brtypes.ContentBlockMemberToolUse:
			var input map[string]any
			_ = b.Value.Input.UnmarshalSmithyDocument(&input)
			parts = append(parts, llm.ToolUsePart{
				ID:    aws.ToString(b.Value.ToolUseId),
				Name:  aws.ToString(b.Value.Name),
				Input: input,
			})
		}
	}
	usage := llm.TokenUsage{}
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return llm.Response{
		Message:    llm.Message{Role: llm.RoleAssistant, Parts: parts},
		Usage:      usage,
		StopReason: string(out.StopReason),
	}, nil
}

func mapError(endpoint string, err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return &taxonomy.ExternalError{
			Endpoint:   endpoint,
			StatusCode: respErr.HTTPStatusCode(),
			Transient:  respErr.HTTPStatusCode() == 429 || respErr.HTTPStatusCode() >= 500,
			Cause:      err,
		}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &taxonomy.ExternalError{Endpoint: endpoint, Transient: true, Cause: err}
	}
	return &taxonomy.ExternalError{Endpoint: endpoint, Transient: true, Cause: err}
}
