package providers

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/protocol"
)

type stubOpenAIChat struct {
	calls int
	resps []openai.ChatCompletionResponse
	errs  []error
}

func (s *stubOpenAIChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := s.calls
	s.calls++
	var resp openai.ChatCompletionResponse
	var err error
	if i < len(s.resps) {
		resp = s.resps[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return resp, err
}

func TestOpenAIAdapterToolCalls(t *testing.T) {
	stub := &stubOpenAIChat{
		resps: []openai.ChatCompletionResponse{{
			Choices: []openai.ChatCompletionChoice{{
				FinishReason: openai.FinishReasonToolCalls,
				Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ToolCall{{
						ID:       "c1",
						Function: openai.FunctionCall{Name: "memory", Arguments: `{"action":"list"}`},
					}},
				},
			}},
		}},
	}
	a := &OpenAIAdapter{providerID: "openai", chat: stub}

	resp, err := a.Call(context.Background(), CallRequest{
		Model:    catalog.Model{ID: "gpt-4o"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("list memory")}}},
	})

	require.NoError(t, err)
	require.Equal(t, protocol.StopToolUse, resp.StopReason)
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	require.Equal(t, "memory", uses[0].Name)
	require.Equal(t, "c1", uses[0].ID)
}

func TestOpenAIAdapterStripsReasoningMarkers(t *testing.T) {
	stub := &stubOpenAIChat{
		resps: []openai.ChatCompletionResponse{{
			Choices: []openai.ChatCompletionChoice{{
				FinishReason: openai.FinishReasonStop,
				Message:      openai.ChatCompletionMessage{Content: "<think>scratch</think>final answer"},
			}},
		}},
	}
	a := &OpenAIAdapter{providerID: "openai", chat: stub}

	resp, err := a.Call(context.Background(), CallRequest{
		Model:    catalog.Model{ID: "gpt-4o"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("hi")}}},
	})

	require.NoError(t, err)
	require.Equal(t, "final answer", resp.Text())
}

func TestOpenAIAdapterFatalOn404(t *testing.T) {
	stub := &stubOpenAIChat{errs: []error{&openai.APIError{HTTPStatusCode: 404}}}
	a := &OpenAIAdapter{providerID: "openai", chat: stub}

	_, err := a.Call(context.Background(), CallRequest{
		Model:    catalog.Model{ID: "gpt-4o"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("hi")}}},
	})

	require.Error(t, err)
	require.Equal(t, 1, stub.calls)
}

func TestOpenAIAdapterRetriesOn429(t *testing.T) {
	stub := &stubOpenAIChat{
		errs: []error{&openai.APIError{HTTPStatusCode: 429}},
		resps: []openai.ChatCompletionResponse{
			{},
			{Choices: []openai.ChatCompletionChoice{{FinishReason: openai.FinishReasonStop, Message: openai.ChatCompletionMessage{Content: "ok"}}}},
		},
	}
	a := &OpenAIAdapter{providerID: "openai", chat: stub}

	resp, err := a.Call(context.Background(), CallRequest{
		Model:    catalog.Model{ID: "gpt-4o"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("hi")}}},
	})

	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text())
	require.Equal(t, 2, stub.calls)
}
