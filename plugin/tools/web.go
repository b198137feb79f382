package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxFetchChars = 8000

var blankLines = regexp.MustCompile(`\n{3,}`)

// WebFetch is the web_fetch tool. HTML responses are reduced to their
// visible text; other content types are returned as-is.
type WebFetch struct {
	Client *http.Client
}

func (t *WebFetch) Name() string        { return "web_fetch" }
func (t *WebFetch) Description() string { return "Fetch a URL via HTTP GET and return its readable text" }
func (t *WebFetch) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to fetch"},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetch) Execute(ctx context.Context, args map[string]any) (string, error) {
	url := stringArg(args, "url")
	if url == "" {
		return "", fmt.Errorf("url is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Puppeteer/1.0")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		content, err = htmlText(content)
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
	}
	if len(content) > maxFetchChars {
		content = content[:maxFetchChars] + "\n[...truncated...]"
	}
	return fmt.Sprintf("HTTP %d\n\n%s", resp.StatusCode, content), nil
}

// htmlText returns the visible text of an HTML document, one block per line.
func htmlText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	walkText(root, &sb)
	out := blankLines.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

func walkText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			sb.WriteString(text)
			sb.WriteByte(' ')
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "head", "svg":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb)
	}
	if n.Type == html.ElementNode && isBlock(n.Data) {
		sb.WriteByte('\n')
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "tr", "pre", "section", "article", "header", "footer",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "table", "blockquote":
		return true
	}
	return false
}
