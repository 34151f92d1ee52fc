package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/genai"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/protocol"
)

// googleModels is the subset of genai's generative-model client used here.
type googleModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GoogleAdapter implements Adapter for catalog.FormatGoogle (Gemini)
// providers.
type GoogleAdapter struct {
	providerID string
	models     googleModels
}

// NewGoogleAdapter builds a real SDK-backed adapter for provider.
func NewGoogleAdapter(provider catalog.Provider) (*GoogleAdapter, error) {
	apiKey := catalog.Default.APIKey(provider.ID)
	if apiKey == "" {
		return nil, fmt.Errorf("providers: missing API key for provider %q (env %s)", provider.ID, provider.APIKeyEnv)
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("providers: build genai client: %w", err)
	}
	return &GoogleAdapter{providerID: provider.ID, models: client.Models}, nil
}

// Call implements Adapter. Gemini's wire format carries no call id for
// function calls, so ids are synthesized as call_<index> within the turn,
// and an id->name map is built while walking prior tool_use blocks to
// render the matching functionResponse's name (protocol.Block only carries
// tool_use_id, not the tool name, for tool_result).
func (a *GoogleAdapter) Call(ctx context.Context, req CallRequest) (*protocol.Response, error) {
	contents, err := encodeGoogleContents(req.Messages)
	if err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 {
		config.Tools = encodeGoogleTools(req.Tools)
	}

	return withRetry(ctx, a.providerID, func(ctx context.Context, _ int) (*protocol.Response, attemptResult, error) {
		resp, err := a.models.GenerateContent(ctx, req.Model.ID, contents, config)
		if err != nil {
			return nil, classifyGoogleError(err), err
		}
		return decodeGoogleResponse(resp), attemptResult{}, nil
	})
}

func encodeGoogleTools(specs []protocol.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		var schema *genai.Schema
		_ = json.Unmarshal(spec.InputSchema, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// encodeGoogleContents maps internal messages to genai.Content, tracking
// tool_use id -> name so a later tool_result in the same turn can carry
// the function name Gemini's functionResponse part requires.
func encodeGoogleContents(messages []protocol.Message) ([]*genai.Content, error) {
	idToName := map[string]string{}
	out := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == protocol.RoleAssistant {
			role = genai.RoleModel
		}

		parts := make([]*genai.Part, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case protocol.BlockText:
				parts = append(parts, genai.NewPartFromText(b.Text))
			case protocol.BlockToolUse:
				idToName[b.ID] = b.Name
				var args map[string]any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &args); err != nil {
						return nil, fmt.Errorf("providers: decode tool_use input: %w", err)
					}
				}
				parts = append(parts, genai.NewPartFromFunctionCall(b.Name, args))
			case protocol.BlockToolResult:
				name := idToName[b.ToolUseID]
				if name == "" {
					name = b.ToolUseID
				}
				parts = append(parts, genai.NewPartFromFunctionResponse(name, map[string]any{
					"content":  b.Content,
					"is_error": b.IsError,
				}))
			case protocol.BlockImage:
				parts = append(parts, genai.NewPartFromBytes([]byte(b.Data), b.MediaType))
			}
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out, nil
}

func decodeGoogleResponse(resp *genai.GenerateContentResponse) *protocol.Response {
	out := &protocol.Response{StopReason: protocol.StopEndTurn}
	if resp.UsageMetadata != nil {
		out.Usage = protocol.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	candidate := resp.Candidates[0]
	out.StopReason = decodeGoogleFinishReason(candidate.FinishReason)

	callIndex := 0
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			out.Content = append(out.Content, protocol.TextBlock(part.Text))
			continue
		}
		if part.FunctionCall != nil {
			id := "call_" + strconv.Itoa(callIndex)
			callIndex++
			input, _ := json.Marshal(part.FunctionCall.Args)
			out.Content = append(out.Content, protocol.ToolUseBlock(id, part.FunctionCall.Name, input))
			out.StopReason = protocol.StopToolUse
		}
	}
	return out
}

func decodeGoogleFinishReason(r genai.FinishReason) protocol.StopReason {
	switch r {
	case genai.FinishReasonMaxTokens:
		return protocol.StopMaxTokens
	case genai.FinishReasonStop:
		return protocol.StopEndTurn
	default:
		return protocol.StopEndTurn
	}
}

func classifyGoogleError(err error) attemptResult {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return attemptResult{statusCode: apiErr.Code, retryable: isRetryableStatus(apiErr.Code)}
	}
	return attemptResult{retryable: true}
}
