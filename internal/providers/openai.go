package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	openai "github.com/sashabaranov/go-openai"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/protocol"
)

// openaiChat is the subset of the go-openai client used here (grounded on
// goa-ai's ChatClient interface), narrowed for testability.
type openaiChat interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAdapter implements Adapter for catalog.FormatOpenAI providers, which
// also covers any OpenAI-compatible base URL (DeepSeek, xiaomi, etc).
type OpenAIAdapter struct {
	providerID     string
	chat           openaiChat
	maxTokensField string
}

// NewOpenAIAdapter builds a real SDK-backed adapter for provider.
func NewOpenAIAdapter(provider catalog.Provider) (*OpenAIAdapter, error) {
	apiKey := catalog.Default.APIKey(provider.ID)
	if apiKey == "" {
		return nil, fmt.Errorf("providers: missing API key for provider %q (env %s)", provider.ID, provider.APIKeyEnv)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL := catalog.Default.ResolveBaseURL(provider.ID); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)
	return &OpenAIAdapter{providerID: provider.ID, chat: client, maxTokensField: provider.MaxTokensField}, nil
}

// Call implements Adapter.
func (a *OpenAIAdapter) Call(ctx context.Context, req CallRequest) (*protocol.Response, error) {
	body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	return withRetry(ctx, a.providerID, func(ctx context.Context, _ int) (*protocol.Response, attemptResult, error) {
		resp, err := a.chat.CreateChatCompletion(ctx, body)
		if err != nil {
			return nil, classifyOpenAIError(err), err
		}
		return decodeOpenAIResponse(resp), attemptResult{}, nil
	})
}

func (a *OpenAIAdapter) buildRequest(req CallRequest) (openai.ChatCompletionRequest, error) {
	messages, err := encodeOpenAIMessages(req.System, req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	body := openai.ChatCompletionRequest{
		Model:     req.Model.ID,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if a.maxTokensField == "max_completion_tokens" {
		body.MaxTokens, body.MaxCompletionTokens = 0, req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		body.Tools = encodeOpenAITools(req.Tools)
	}
	return body, nil
}

func encodeOpenAITools(specs []protocol.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(spec.InputSchema),
			},
		})
	}
	return out
}

// encodeOpenAIMessages maps the internal protocol into the OpenAI chat
// shape: a leading system message, then one message per user/assistant
// turn, with assistant tool_use blocks becoming ToolCalls and tool_result
// blocks becoming role=="tool" messages keyed by ToolCallID.
func encodeOpenAIMessages(system string, messages []protocol.Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range messages {
		switch m.Role {
		case protocol.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, b := range m.Content {
				switch b.Type {
				case protocol.BlockText:
					msg.Content += b.Text
				case protocol.BlockToolUse:
					msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
						ID:   b.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      b.Name,
							Arguments: string(b.Input),
						},
					})
				}
			}
			out = append(out, msg)
		case protocol.RoleUser:
			var text string
			var toolResults []protocol.Block
			for _, b := range m.Content {
				switch b.Type {
				case protocol.BlockText:
					text += b.Text
				case protocol.BlockToolResult:
					toolResults = append(toolResults, b)
				}
			}
			if text != "" || len(toolResults) == 0 {
				out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
			}
			for _, tr := range toolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolUseID,
				})
			}
		}
	}
	return out, nil
}

var reasoningMarker = regexp.MustCompile(`(?s)<think>.*?</think>`)

func decodeOpenAIResponse(resp openai.ChatCompletionResponse) *protocol.Response {
	out := &protocol.Response{
		Usage: protocol.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		StopReason: protocol.StopEndTurn,
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.StopReason = decodeOpenAIFinishReason(choice.FinishReason)

	if text := reasoningMarker.ReplaceAllString(choice.Message.Content, ""); text != "" {
		out.Content = append(out.Content, protocol.TextBlock(text))
	}
	for _, call := range choice.Message.ToolCalls {
		out.Content = append(out.Content, protocol.ToolUseBlock(call.ID, call.Function.Name, json.RawMessage(call.Function.Arguments)))
	}
	return out
}

func decodeOpenAIFinishReason(r openai.FinishReason) protocol.StopReason {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return protocol.StopToolUse
	case openai.FinishReasonLength:
		return protocol.StopMaxTokens
	default:
		return protocol.StopEndTurn
	}
}

func classifyOpenAIError(err error) attemptResult {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return attemptResult{statusCode: apiErr.HTTPStatusCode, retryable: isRetryableStatus(apiErr.HTTPStatusCode)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return attemptResult{statusCode: reqErr.HTTPStatusCode, retryable: isRetryableStatus(reqErr.HTTPStatusCode)}
	}
	return attemptResult{retryable: true}
}
