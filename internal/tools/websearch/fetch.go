// Package websearch implements the web_fetch and web_search built-in
// tools. web_fetch gates every URL through the shared internal/net/ssrf
// filter before the extractor touches the network; web_search fans out to
// whichever search backend has credentials configured.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/djun/bashclaw/internal/net/ssrf"
	"github.com/djun/bashclaw/internal/tools"
)

const defaultMaxChars = 10000

// FetchTool implements web_fetch.
type FetchTool struct {
	extractor *ContentExtractor
	maxChars  int
	// validate gates a URL before any network traffic; nil means checkURL.
	// Tests substitute a permissive gate to reach httptest loopback servers.
	validate func(string) error
}

// NewFetchTool creates a web_fetch tool with the default extraction and
// SSRF gate.
func NewFetchTool() *FetchTool {
	return &FetchTool{extractor: NewContentExtractor(nil), maxChars: defaultMaxChars}
}

func (t *FetchTool) Name() string { return "web_fetch" }
func (t *FetchTool) Description() string {
	return "Fetch a URL and return its readable text content, truncated to maxChars."
}
func (t *FetchTool) BridgeExposed() bool { return true }

func (t *FetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "http(s) URL to fetch."},
			"maxChars": {"type": "integer", "minimum": 0}
		},
		"required": ["url"]
	}`)
}

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		URL      string `json:"url"`
		MaxChars int    `json:"maxChars"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	raw := strings.TrimSpace(input.URL)
	if raw == "" {
		return tools.Errorf("url is required"), nil
	}

	validate := t.validate
	if validate == nil {
		validate = checkURL
	}
	if err := validate(raw); err != nil {
		return tools.Errorf("SSRF: %v", err), nil
	}

	content, err := t.extractor.Extract(ctx, raw)
	if err != nil {
		return tools.Errorf("fetch failed: %v", err), nil
	}

	limit := t.maxChars
	if input.MaxChars > 0 {
		limit = input.MaxChars
	}
	truncated := false
	if limit > 0 && len(content) > limit {
		content = content[:limit] + "..."
		truncated = true
	}
	return tools.JSONResult(map[string]any{"url": raw, "content": content, "truncated": truncated}), nil
}

// checkURL rejects non-http(s) schemes and hosts in private address space,
// re-checking resolved addresses against the same tables.
func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}
	return ssrf.ValidatePublicHostname(host)
}
