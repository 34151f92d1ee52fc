package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/protocol"
)

// anthropicMessages is the subset of *anthropic.MessageService this adapter
// calls, narrowed so tests can substitute a stub (grounded on goa-ai's
// MessagesClient interface).
type anthropicMessages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicAdapter implements Adapter for catalog.FormatAnthropic providers.
type AnthropicAdapter struct {
	providerID string
	messages   anthropicMessages
}

// NewAnthropicAdapter builds a real SDK-backed adapter for provider.
func NewAnthropicAdapter(provider catalog.Provider) (*AnthropicAdapter, error) {
	apiKey := catalog.Default.APIKey(provider.ID)
	if apiKey == "" {
		return nil, fmt.Errorf("providers: missing API key for provider %q (env %s)", provider.ID, provider.APIKeyEnv)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: attemptTimeout}),
	}
	baseURL := catalog.Default.ResolveBaseURL(provider.ID)
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicAdapter{providerID: provider.ID, messages: &client.Messages}, nil
}

// Call implements Adapter.
func (a *AnthropicAdapter) Call(ctx context.Context, req CallRequest) (*protocol.Response, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	return withRetry(ctx, a.providerID, func(ctx context.Context, _ int) (*protocol.Response, attemptResult, error) {
		msg, err := a.messages.New(ctx, params)
		if err != nil {
			return nil, classifyAnthropicError(err), err
		}
		return decodeAnthropicMessage(msg), attemptResult{}, nil
	})
}

func (a *AnthropicAdapter) buildParams(req CallRequest) (anthropic.MessageNewParams, error) {
	messages, err := encodeAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model.ID),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Opt(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeAnthropicTools(req.Tools)
	}
	return params, nil
}

func encodeAnthropicTools(specs []protocol.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema map[string]any
		_ = json.Unmarshal(spec.InputSchema, &schema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.Opt(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			},
		})
	}
	return out
}

// encodeAnthropicMessages maps internal protocol.Message/Block values into
// anthropic.MessageParam content blocks.
func encodeAnthropicMessages(messages []protocol.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		role := anthropic.MessageParamRoleUser
		if m.Role == protocol.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}

		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case protocol.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case protocol.BlockToolUse:
				var input any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, fmt.Errorf("providers: decode tool_use input: %w", err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case protocol.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			case protocol.BlockImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(b.MediaType, b.Data))
			}
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out, nil
}

func decodeAnthropicMessage(msg *anthropic.Message) *protocol.Response {
	resp := &protocol.Response{
		Usage: protocol.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		StopReason: decodeAnthropicStopReason(msg.StopReason),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, protocol.TextBlock(block.Text))
		case "tool_use":
			resp.Content = append(resp.Content, protocol.ToolUseBlock(block.ID, block.Name, json.RawMessage(block.Input)))
		}
	}
	return resp
}

func decodeAnthropicStopReason(r anthropic.StopReason) protocol.StopReason {
	switch r {
	case anthropic.StopReasonToolUse:
		return protocol.StopToolUse
	case anthropic.StopReasonMaxTokens:
		return protocol.StopMaxTokens
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return protocol.StopEndTurn
	default:
		return protocol.StopEndTurn
	}
}

func classifyAnthropicError(err error) attemptResult {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return attemptResult{statusCode: apiErr.StatusCode, retryable: isRetryableStatus(apiErr.StatusCode)}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return attemptResult{retryable: true}
	}
	// Unrecognized error shape: treat as a network-level failure.
	return attemptResult{retryable: true}
}
