// Package catalog holds the static description of providers, models, and
// capabilities, and the env-var bindings that turn a model_id into
// credentials and a base URL. It is pure data plus lookup helpers; no
// network or provider-SDK code lives here.
package catalog

import (
	"os"
	"strings"
	"sync"
)

// APIFormat is the wire protocol family a provider speaks.
type APIFormat string

const (
	FormatAnthropic APIFormat = "anthropic"
	FormatOpenAI    APIFormat = "openai"
	FormatGoogle    APIFormat = "google"
)

// Provider describes one upstream LLM vendor or proxy.
type Provider struct {
	ID         string
	APIFormat  APIFormat
	BaseURL    string
	APIKeyEnv  string
	APIVersion string
	// MaxTokensField overrides the wire field name used for the max-output
	// parameter, for providers whose OpenAI-compatible endpoint diverges.
	// The OpenAI adapter recognizes "max_completion_tokens"; any other value
	// leaves the parameter in "max_tokens".
	MaxTokensField string
}

// Model describes one selectable model and its capabilities.
type Model struct {
	ID             string
	ProviderID     string
	ContextWindow  int
	MaxOutput      int
	SupportsTools  bool
	SupportsVision bool
	Streaming      bool
	Reasoning      bool
}

// defaultModel is returned for any model_id the catalog has never seen:
// tools on, vision off, a conservative context window.
func defaultModel(id, providerID string) Model {
	return Model{
		ID:             id,
		ProviderID:     providerID,
		ContextWindow:  128000,
		MaxOutput:      4096,
		SupportsTools:  true,
		SupportsVision: false,
	}
}

// Catalog is the process-wide registry of providers and models.
type Catalog struct {
	mu        sync.RWMutex
	providers map[string]Provider
	models    map[string]Model
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		providers: make(map[string]Provider),
		models:    make(map[string]Model),
	}
}

// RegisterProvider adds or replaces a provider entry.
func (c *Catalog) RegisterProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.ID] = p
}

// RegisterModel adds or replaces a model entry.
func (c *Catalog) RegisterModel(m Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.ID] = m
}

// Provider looks up a provider by id.
func (c *Catalog) Provider(id string) (Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[id]
	return p, ok
}

// Model looks up a model by id. Unknown models resolve to a safe default
// capability set attributed to a best-guess provider inferred from the id's
// prefix, falling back to "openai" (the most permissive wire format).
func (c *Catalog) Model(id string) Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.models[id]; ok {
		return m
	}
	providerID := guessProviderID(id)
	return defaultModel(id, providerID)
}

func guessProviderID(modelID string) string {
	switch {
	case strings.HasPrefix(modelID, "claude-"):
		return "anthropic"
	case strings.HasPrefix(modelID, "gemini-"):
		return "google"
	default:
		return "openai"
	}
}

// ResolveBaseURL returns the provider's base URL, applying the
// ANTHROPIC_BASE_URL proxy override for any anthropic-format provider.
func (c *Catalog) ResolveBaseURL(providerID string) string {
	p, ok := c.Provider(providerID)
	if !ok {
		return ""
	}
	if p.APIFormat == FormatAnthropic {
		if override := os.Getenv("ANTHROPIC_BASE_URL"); override != "" {
			return override
		}
	}
	return p.BaseURL
}

// APIKey reads the provider's credential from its bound env var.
func (c *Catalog) APIKey(providerID string) string {
	p, ok := c.Provider(providerID)
	if !ok {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// ModelsByProvider lists every registered model for a provider.
func (c *Catalog) ModelsByProvider(providerID string) []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Model
	for _, m := range c.models {
		if m.ProviderID == providerID {
			out = append(out, m)
		}
	}
	return out
}

// Default is the process-wide catalog, seeded by registerBuiltins.
var Default = New()

func init() {
	registerBuiltins(Default)
}

func registerBuiltins(c *Catalog) {
	c.RegisterProvider(Provider{ID: "anthropic", APIFormat: FormatAnthropic, BaseURL: "https://api.anthropic.com", APIKeyEnv: "ANTHROPIC_API_KEY", APIVersion: "2023-06-01"})
	c.RegisterProvider(Provider{ID: "openai", APIFormat: FormatOpenAI, BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"})
	c.RegisterProvider(Provider{ID: "google", APIFormat: FormatGoogle, BaseURL: "https://generativelanguage.googleapis.com", APIKeyEnv: "GEMINI_API_KEY"})
	c.RegisterProvider(Provider{ID: "deepseek", APIFormat: FormatOpenAI, BaseURL: "https://api.deepseek.com/v1", APIKeyEnv: "DEEPSEEK_API_KEY"})
	c.RegisterProvider(Provider{ID: "xiaomi", APIFormat: FormatOpenAI, BaseURL: "https://api.xiaomi.com/v1", APIKeyEnv: "XIAOMI_API_KEY"})

	c.RegisterModel(Model{ID: "claude-opus-4-20250514", ProviderID: "anthropic", ContextWindow: 200000, MaxOutput: 32000, SupportsTools: true, SupportsVision: true, Reasoning: true})
	c.RegisterModel(Model{ID: "claude-3-5-sonnet-latest", ProviderID: "anthropic", ContextWindow: 200000, MaxOutput: 8192, SupportsTools: true, SupportsVision: true})
	c.RegisterModel(Model{ID: "claude-3-5-haiku-latest", ProviderID: "anthropic", ContextWindow: 200000, MaxOutput: 8192, SupportsTools: true, SupportsVision: false})
	c.RegisterModel(Model{ID: "gpt-4o", ProviderID: "openai", ContextWindow: 128000, MaxOutput: 16384, SupportsTools: true, SupportsVision: true})
	c.RegisterModel(Model{ID: "gpt-4o-mini", ProviderID: "openai", ContextWindow: 128000, MaxOutput: 16384, SupportsTools: true, SupportsVision: true})
	c.RegisterModel(Model{ID: "o3-mini", ProviderID: "openai", ContextWindow: 200000, MaxOutput: 100000, SupportsTools: true, SupportsVision: false, Reasoning: true})
	c.RegisterModel(Model{ID: "gemini-2.0-flash-exp", ProviderID: "google", ContextWindow: 1000000, MaxOutput: 8192, SupportsTools: true, SupportsVision: true})
	c.RegisterModel(Model{ID: "gemini-1.5-pro-latest", ProviderID: "google", ContextWindow: 2000000, MaxOutput: 8192, SupportsTools: true, SupportsVision: true})
}
