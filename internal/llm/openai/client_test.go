package openai

import (
	"context"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/llm"
)

type stubChatClient struct {
	lastParams sdk.ChatCompletionNewParams
	resp       *sdk.ChatCompletion
	err        error
}

func (s *stubChatClient) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestCompleteTranslatesTextResponse(t *testing.T) {
	stub := &stubChatClient{
		resp: &sdk.ChatCompletion{
			Choices: []sdk.ChatCompletionChoice{
				{
					Message:      sdk.ChatCompletionMessage{Content: "hello there"},
					FinishReason: "stop",
				},
			},
			Usage: sdk.CompletionUsage{PromptTokens: 12, CompletionTokens: 4},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "gpt-5", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: "hi"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Message.Text())
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
	assert.Equal(t, "stop", resp.StopReason)
}

func TestCompleteTranslatesToolCalls(t *testing.T) {
	stub := &stubChatClient{
		resp: &sdk.ChatCompletion{
			Choices: []sdk.ChatCompletionChoice{
				{
					Message: sdk.ChatCompletionMessage{
						ToolCalls: []sdk.ChatCompletionMessageToolCall{
							{
								ID: "call_1",
								Function: sdk.ChatCompletionMessageToolCallFunction{
									Name:      "list_node_schemas",
									Arguments: `{"category":"llm"}`,
								},
							},
						},
					},
				},
			},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "gpt-5", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: "hi"}}}},
	})
	require.NoError(t, err)
	uses := resp.Message.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "list_node_schemas", uses[0].Name)
	assert.Equal(t, "llm", uses[0].Input["category"])
}

func TestCompleteRejectsNoChoices(t *testing.T) {
	stub := &stubChatClient{resp: &sdk.ChatCompletion{}}
	cl, err := New(stub, Options{DefaultModel: "gpt-5", MaxTokens: 128})
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: "hi"}}}},
	})
	assert.Error(t, err)
}

func TestNewRequiresChatClientAndDefaultModel(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "x"})
	assert.Error(t, err)
	_, err = New(&stubChatClient{}, Options{})
	assert.Error(t, err)
}
