// Package providers adapts the internal message protocol (internal/protocol)
// to the three wire formats the catalog knows about: Anthropic, OpenAI
// (and OpenAI-compatible bases), and Google Gemini. Each adapter owns its
// own retry loop; callers only see CallRequest in, *protocol.Response out.
package providers

import (
	"context"
	"fmt"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/protocol"
)

// CallRequest is one model invocation: system prompt, full message history,
// and the tool specs currently visible to the calling agent.
type CallRequest struct {
	Provider    catalog.Provider
	Model       catalog.Model
	System      string
	Messages    []protocol.Message
	Tools       []protocol.Tool
	MaxTokens   int
	Temperature float64
}

// Adapter performs one non-streaming model call and normalizes the result
// into the internal protocol. Implementations own their own retry policy.
type Adapter interface {
	Call(ctx context.Context, req CallRequest) (*protocol.Response, error)
}

// New builds the adapter for provider.APIFormat, wiring in the provider's
// resolved base URL and API key.
func New(provider catalog.Provider) (Adapter, error) {
	switch provider.APIFormat {
	case catalog.FormatAnthropic:
		return NewAnthropicAdapter(provider)
	case catalog.FormatOpenAI:
		return NewOpenAIAdapter(provider)
	case catalog.FormatGoogle:
		return NewGoogleAdapter(provider)
	default:
		return nil, fmt.Errorf("providers: unknown api_format %q for provider %q", provider.APIFormat, provider.ID)
	}
}
