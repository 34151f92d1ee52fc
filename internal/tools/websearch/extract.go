package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	fetchUserAgent = "Mozilla/5.0 (compatible; bashclaw/1.0)"
	maxBodyBytes   = 10 * 1024 * 1024
)

// ContentExtractor fetches a page and reduces it to readable text: strip
// script/style/nav chrome, pull the title and meta description, then the
// first substantial content container. It performs no SSRF checks of its
// own; FetchTool gates every URL before handing it here.
type ContentExtractor struct {
	client *http.Client
}

// NewContentExtractor creates an extractor using client, or a default
// 15-second-timeout client when nil.
func NewContentExtractor(client *http.Client) *ContentExtractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ContentExtractor{client: client}
}

// Extract fetches targetURL and returns its readable text.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if strings.Contains(contentType, "text/plain") {
		return tidyText(string(body)), nil
	}
	return e.readable(string(body)), nil
}

// chromeTags are elements dropped wholesale before content extraction.
var chromeTags = []string{"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside"}

// containerPatterns match the places main content usually lives, tried in
// order of specificity.
var containerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<main[^>]*>(.*?)</main>`),
	regexp.MustCompile(`(?is)<article[^>]*>(.*?)</article>`),
	regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*content[^"']*["'][^>]*>(.*?)</div>`),
	regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*article[^"']*["'][^>]*>(.*?)</div>`),
	regexp.MustCompile(`(?is)<div[^>]*id=["']content["'][^>]*>(.*?)</div>`),
	regexp.MustCompile(`(?is)<div[^>]*id=["']main["'][^>]*>(.*?)</div>`),
	regexp.MustCompile(`(?is)<div[^>]*role=["']main["'][^>]*>(.*?)</div>`),
}

// minContainerText filters out containers that only hold navigation scraps.
const minContainerText = 200

// readable turns an HTML document into "Title / Description / body text".
func (e *ContentExtractor) readable(html string) string {
	for _, tag := range chromeTags {
		html = dropTag(html, tag)
	}

	var out strings.Builder
	if title := pageTitle(html); title != "" {
		out.WriteString("Title: ")
		out.WriteString(title)
		out.WriteString("\n\n")
	}
	if desc := metaDescription(html); desc != "" {
		out.WriteString("Description: ")
		out.WriteString(desc)
		out.WriteString("\n\n")
	}

	content := mainContent(html)
	if content == "" {
		content = bodyText(html)
	}
	out.WriteString(tidyText(content))
	return out.String()
}

func dropTag(html, tag string) string {
	re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(html, "")
}

var (
	titleRE   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	ogTitleRE = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`)
	h1RE      = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	descRE    = regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`)
	ogDescRE  = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`)
	bodyRE    = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	anyTagRE  = regexp.MustCompile(`<[^>]*>`)
)

func pageTitle(html string) string {
	for _, re := range []*regexp.Regexp{titleRE, ogTitleRE, h1RE} {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			if title := tidyText(m[1]); title != "" {
				return title
			}
		}
	}
	return ""
}

func metaDescription(html string) string {
	for _, re := range []*regexp.Regexp{descRE, ogDescRE} {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			if desc := tidyText(m[1]); desc != "" {
				return desc
			}
		}
	}
	return ""
}

func mainContent(html string) string {
	for _, re := range containerPatterns {
		m := re.FindStringSubmatch(html)
		if len(m) < 2 {
			continue
		}
		text := toText(m[1])
		if len(strings.TrimSpace(text)) >= minContainerText {
			return text
		}
	}
	return ""
}

func bodyText(html string) string {
	if m := bodyRE.FindStringSubmatch(html); len(m) > 1 {
		return toText(m[1])
	}
	return ""
}

// blockTags break onto their own lines when converting to plain text.
var blockTags = []string{"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br"}

func toText(html string) string {
	for _, tag := range blockTags {
		html = regexp.MustCompile(`(?i)</?`+tag+`[^>]*>`).ReplaceAllString(html, "\n")
	}
	return anyTagRE.ReplaceAllString(html, "")
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

var (
	lineSpaceRE = regexp.MustCompile(`[^\S\n]+`)
	blankRunRE  = regexp.MustCompile(`\n{3,}`)
)

// tidyText decodes common entities and normalizes whitespace while keeping
// paragraph breaks (at most one blank line in a row).
func tidyText(text string) string {
	text = entityReplacer.Replace(text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(lineSpaceRE.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunRE.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
