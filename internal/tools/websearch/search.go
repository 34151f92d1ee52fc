package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/djun/bashclaw/internal/tools"
)

const (
	defaultBraveURL      = "https://api.search.brave.com/res/v1/web/search"
	defaultPerplexityURL = "https://api.perplexity.ai/chat/completions"
)

// SearchTool implements web_search, selecting a backend by which API key
// env var is present: Brave Search or Perplexity. Results are parsed with
// gjson rather than full struct unmarshaling, since this tool doesn't own
// the schema of either backend's response payload.
type SearchTool struct {
	httpClient    *http.Client
	braveURL      string
	perplexityURL string
}

// NewSearchTool creates a web_search tool.
func NewSearchTool() *SearchTool {
	return &SearchTool{
		httpClient:    &http.Client{Timeout: 20 * time.Second},
		braveURL:      defaultBraveURL,
		perplexityURL: defaultPerplexityURL,
	}
}

func (t *SearchTool) Name() string        { return "web_search" }
func (t *SearchTool) Description() string { return "Search the web and return ranked results." }
func (t *SearchTool) BridgeExposed() bool { return true }

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"query": {"type": "string"}},
		"required": ["query"]
	}`)
}

// Unavailable reports true when neither backend's API key is configured,
// so the tool registry's visibility formula excludes it automatically.
func (t *SearchTool) Unavailable() bool {
	return os.Getenv("BRAVE_SEARCH_API_KEY") == "" && os.Getenv("PERPLEXITY_API_KEY") == ""
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Errorf("invalid parameters: %v", err), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return tools.Errorf("query is required"), nil
	}

	if key := os.Getenv("BRAVE_SEARCH_API_KEY"); key != "" {
		results, err := t.searchBrave(ctx, key, query)
		if err != nil {
			return tools.Errorf("brave search: %v", err), nil
		}
		return tools.JSONResult(map[string]any{"results": results, "backend": "brave"}), nil
	}
	if key := os.Getenv("PERPLEXITY_API_KEY"); key != "" {
		results, err := t.searchPerplexity(ctx, key, query)
		if err != nil {
			return tools.Errorf("perplexity search: %v", err), nil
		}
		return tools.JSONResult(map[string]any{"results": results, "backend": "perplexity"}), nil
	}
	return tools.Errorf("no web_search backend configured: set BRAVE_SEARCH_API_KEY or PERPLEXITY_API_KEY"), nil
}

func (t *SearchTool) searchBrave(ctx context.Context, apiKey, query string) ([]searchResult, error) {
	endpoint := t.braveURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", apiKey)
	req.Header.Set("Accept", "application/json")

	body, err := t.do(req)
	if err != nil {
		return nil, err
	}

	var out []searchResult
	for _, r := range gjson.GetBytes(body, "web.results").Array() {
		out = append(out, searchResult{
			Title:   r.Get("title").String(),
			URL:     r.Get("url").String(),
			Snippet: r.Get("description").String(),
		})
	}
	return out, nil
}

func (t *SearchTool) searchPerplexity(ctx context.Context, apiKey, query string) ([]searchResult, error) {
	payload, _ := sjson.Set("", "model", "sonar")
	payload, _ = sjson.Set(payload, "messages.0.role", "user")
	payload, _ = sjson.Set(payload, "messages.0.content", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.perplexityURL, strings.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := t.do(req)
	if err != nil {
		return nil, err
	}

	answer := gjson.GetBytes(body, "choices.0.message.content").String()
	var out []searchResult
	for i, citation := range gjson.GetBytes(body, "citations").Array() {
		out = append(out, searchResult{Title: fmt.Sprintf("citation %d", i+1), URL: citation.String(), Snippet: answer})
	}
	if len(out) == 0 && answer != "" {
		out = append(out, searchResult{Title: "answer", Snippet: answer})
	}
	return out, nil
}

func (t *SearchTool) do(req *http.Request) ([]byte, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
