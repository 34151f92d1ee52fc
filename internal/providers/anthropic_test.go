package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/protocol"
)

type stubAnthropicMessages struct {
	calls int
	resps []*anthropic.Message
	errs  []error
}

func (s *stubAnthropicMessages) New(_ context.Context, _ anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	i := s.calls
	s.calls++
	var resp *anthropic.Message
	var err error
	if i < len(s.resps) {
		resp = s.resps[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return resp, err
}

func TestAnthropicAdapterTextResponse(t *testing.T) {
	stub := &stubAnthropicMessages{
		resps: []*anthropic.Message{{
			Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: "hello"}},
			StopReason: anthropic.StopReasonEndTurn,
			Usage:      anthropic.Usage{InputTokens: 10, OutputTokens: 5},
		}},
	}
	a := &AnthropicAdapter{providerID: "anthropic", messages: stub}

	resp, err := a.Call(context.Background(), CallRequest{
		Provider: catalog.Provider{ID: "anthropic"},
		Model:    catalog.Model{ID: "claude-3-5-sonnet-latest"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("hi")}}},
	})

	require.NoError(t, err)
	require.Equal(t, protocol.StopEndTurn, resp.StopReason)
	require.Equal(t, "hello", resp.Text())
	require.Equal(t, 10, resp.Usage.InputTokens)
}

func TestAnthropicAdapterToolUse(t *testing.T) {
	stub := &stubAnthropicMessages{
		resps: []*anthropic.Message{{
			Content: []anthropic.ContentBlockUnion{
				{Type: "tool_use", ID: "call_1", Name: "memory", Input: []byte(`{"action":"list"}`)},
			},
			StopReason: anthropic.StopReasonToolUse,
		}},
	}
	a := &AnthropicAdapter{providerID: "anthropic", messages: stub}

	resp, err := a.Call(context.Background(), CallRequest{
		Model:    catalog.Model{ID: "claude-3-5-sonnet-latest"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("list memory")}}},
	})

	require.NoError(t, err)
	require.Equal(t, protocol.StopToolUse, resp.StopReason)
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	require.Equal(t, "memory", uses[0].Name)
}

func TestAnthropicAdapterRetriesOnServerError(t *testing.T) {
	stub := &stubAnthropicMessages{
		errs: []error{
			&anthropic.Error{StatusCode: 503},
			&anthropic.Error{StatusCode: 500},
		},
		resps: []*anthropic.Message{
			nil,
			nil,
			{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "ok"}}, StopReason: anthropic.StopReasonEndTurn},
		},
	}
	a := &AnthropicAdapter{providerID: "anthropic", messages: stub}

	resp, err := a.Call(context.Background(), CallRequest{
		Model:    catalog.Model{ID: "claude-3-5-sonnet-latest"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("hi")}}},
	})

	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text())
	require.Equal(t, 3, stub.calls)
}

func TestAnthropicAdapterFatalOn400(t *testing.T) {
	stub := &stubAnthropicMessages{
		errs: []error{&anthropic.Error{
			StatusCode: 400,
			Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
			Response:   &http.Response{StatusCode: 400},
		}},
	}
	a := &AnthropicAdapter{providerID: "anthropic", messages: stub}

	_, err := a.Call(context.Background(), CallRequest{
		Model:    catalog.Model{ID: "claude-3-5-sonnet-latest"},
		Messages: []protocol.Message{{Role: protocol.RoleUser, Content: []protocol.Block{protocol.TextBlock("hi")}}},
	})

	require.Error(t, err)
	require.Equal(t, 1, stub.calls)
}
