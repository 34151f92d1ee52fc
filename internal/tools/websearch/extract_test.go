package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHTML(t *testing.T, html string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestExtractReturnsTitleDescriptionAndBody(t *testing.T) {
	server := serveHTML(t, `
<!DOCTYPE html>
<html>
<head>
    <title>Test Page Title</title>
    <meta name="description" content="This is a test page description">
</head>
<body>
    <header><nav>Navigation menu</nav></header>
    <main>
        <article>
            <h1>Main Article Title</h1>
            <p>This is the first paragraph of the article.</p>
            <p>This is the second paragraph with more content.</p>
            <p>And a third paragraph to ensure we have enough content for the container heuristic.</p>
        </article>
    </main>
    <footer>Footer content</footer>
    <script>console.log("should be removed");</script>
</body>
</html>`)

	content, err := NewContentExtractor(nil).Extract(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Contains(t, content, "Test Page Title")
	assert.Contains(t, content, "test page description")
	assert.Contains(t, content, "first paragraph")
	assert.NotContains(t, content, "console.log")
	assert.NotContains(t, content, "Navigation menu")
	assert.NotContains(t, content, "Footer content")
}

func TestExtractRejectsNonHTMLContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key": "value"}`))
	}))
	defer server.Close()

	_, err := NewContentExtractor(nil).Extract(context.Background(), server.URL)
	require.ErrorContains(t, err, "unsupported content type")
}

func TestExtractReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewContentExtractor(nil).Extract(context.Background(), server.URL)
	require.ErrorContains(t, err, "404")
}

func TestExtractPassesThroughPlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("just   plain\n\n\n\ntext"))
	}))
	defer server.Close()

	content, err := NewContentExtractor(nil).Extract(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "just plain\n\ntext", content)
}

func TestExtractHonorsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := NewContentExtractor(nil).Extract(ctx, server.URL)
	require.Error(t, err)
}

func TestPageTitleFallbackOrder(t *testing.T) {
	tests := []struct {
		name, html, want string
	}{
		{"title tag", `<html><head><title>Page Title</title></head></html>`, "Page Title"},
		{"og:title", `<html><head><meta property="og:title" content="OG Title"></head></html>`, "OG Title"},
		{"h1 fallback", `<html><body><h1>H1 Title</h1></body></html>`, "H1 Title"},
		{"none", `<html><body>No title here</body></html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pageTitle(tt.html))
		})
	}
}

func TestMetaDescriptionFallsBackToOpenGraph(t *testing.T) {
	assert.Equal(t, "Page description",
		metaDescription(`<html><head><meta name="description" content="Page description"></head></html>`))
	assert.Equal(t, "OG description",
		metaDescription(`<html><head><meta property="og:description" content="OG description"></head></html>`))
	assert.Equal(t, "", metaDescription(`<html><head></head></html>`))
}

func TestMainContentSkipsShortContainers(t *testing.T) {
	long := strings.Repeat("sentence with words in it. ", 12)
	assert.Contains(t, mainContent(`<html><body><main><p>`+long+`</p></main></body></html>`), "sentence with words")
	assert.Equal(t, "", mainContent(`<html><body><main>Short</main></body></html>`))
}

func TestToTextStripsTagsAndBreaksBlocks(t *testing.T) {
	text := toText(`<div><h1>Title</h1><p>First paragraph</p><p>with <strong>bold</strong> text</p></div>`)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "First paragraph")
	assert.Contains(t, text, "with bold text")
	assert.NotContains(t, text, "<")
}

func TestTidyText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"entities", "Test &nbsp; &amp; &lt; &gt; &quot; &#39;", `Test & < > " '`},
		{"spaces", "Text  with   multiple    spaces", "Text with multiple spaces"},
		{"newlines", "Line1\n\n\n\nLine2", "Line1\n\nLine2"},
		{"trim", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tidyText(tt.in))
		})
	}
}
