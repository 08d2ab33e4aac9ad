package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/llm"
)

type stubRuntimeClient struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.out, s.err
}

func TestCompleteTranslatesTextResponse(t *testing.T) {
	stub := &stubRuntimeClient{
		out: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: "hello there"},
					},
				},
			},
			Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(7), OutputTokens: aws.Int32(3)},
			StopReason: brtypes.StopReasonEndTurn,
		},
	}
	cl, err := New(stub, Options{DefaultModel: "amazon.nova-pro-v1:0", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: "hi"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Message.Text())
	assert.Equal(t, 7, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	cl, err := New(&stubRuntimeClient{}, Options{DefaultModel: "amazon.nova-pro-v1:0"})
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), llm.Request{})
	assert.Error(t, err)
}

func TestNewRequiresRuntimeAndDefaultModel(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "x"})
	assert.Error(t, err)
	_, err = New(&stubRuntimeClient{}, Options{})
	assert.Error(t, err)
}
