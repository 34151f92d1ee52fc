// Package message implements the "message" built-in tool: it delivers
// text to a named channel/target through whichever Sender the host binary
// registered for that channel name, and returns a delivery id. Channel
// polling/webhook plumbing itself is not reimplemented; Sender is the one
// call-through surface cmd/bashclaw wires to the real Telegram/Discord/Slack
// SDKs, scoped to the single outbound Send call this tool needs.
package message

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/djun/bashclaw/internal/tools"
)

// Sender delivers one piece of text to target on a channel and returns a
// delivery id assigned by the underlying platform (or a synthesized one).
type Sender interface {
	Send(ctx context.Context, target, text string) (deliveryID string, err error)
}

// Registry maps channel names to their registered Sender.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Register binds a Sender to a channel name, replacing any earlier one.
func (r *Registry) Register(channel string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[strings.ToLower(channel)] = s
}

// Get looks up the Sender registered for a channel name.
func (r *Registry) Get(channel string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[strings.ToLower(channel)]
	return s, ok
}

// Tool implements the "message" built-in.
type Tool struct {
	registry *Registry
}

// New creates a message tool bound to registry.
func New(registry *Registry) *Tool {
	return &Tool{registry: registry}
}

func (t *Tool) Name() string { return "message" }
func (t *Tool) Description() string {
	return "Send a message to a channel/target through a registered channel adapter."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"channel": {"type": "string", "description": "Registered channel name (telegram, discord, slack, ...)."},
			"target": {"type": "string", "description": "Recipient id on that channel."},
			"text": {"type": "string"}
		},
		"required": ["channel", "target", "text"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Channel string `json:"channel"`
		Target  string `json:"target"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	channel := strings.ToLower(strings.TrimSpace(input.Channel))
	if channel == "" {
		return tools.Errorf("channel is required"), nil
	}
	if strings.TrimSpace(input.Target) == "" {
		return tools.Errorf("target is required"), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return tools.Errorf("text is required"), nil
	}

	if t.registry == nil {
		return tools.Errorf("unknown channel %q", channel), nil
	}
	sender, ok := t.registry.Get(channel)
	if !ok {
		return tools.Errorf("unknown channel %q", channel), nil
	}

	deliveryID, err := sender.Send(ctx, input.Target, input.Text)
	if err != nil {
		return tools.Errorf("send to %s: %v", channel, err), nil
	}
	if strings.TrimSpace(deliveryID) == "" {
		deliveryID = uuid.NewString()
	}
	return tools.JSONResult(map[string]any{"delivery_id": deliveryID}), nil
}
