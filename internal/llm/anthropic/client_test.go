package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/llm"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestCompleteTranslatesTextResponse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hello there"},
			},
			StopReason: sdk.StopReasonEndTurn,
			Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: "hi"}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Message.Text())
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
}

func TestCompleteTranslatesToolUse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "tool_use", ID: "call_1", Name: "list_node_schemas", Input: []byte(`{"category":"llm"}`)},
			},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 128})
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

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 128})
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), llm.Request{})
	assert.Error(t, err)
}

func TestCompleteMapsAPIErrorToExternalError(t *testing.T) {
	stub := &stubMessagesClient{err: &sdk.Error{StatusCode: 429}}
	cl, err := New(stub, Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 128})
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: "hi"}}}},
	})
	require.Error(t, err)
	var extErr *taxonomy.ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, 429, extErr.StatusCode)
	assert.True(t, extErr.Transient)
}

func TestNewRequiresMessagesClientAndDefaultModel(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "x"})
	assert.Error(t, err)
	_, err = New(&stubMessagesClient{}, Options{})
	assert.Error(t, err)
}
