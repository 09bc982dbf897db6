// Package fetch lets the agent read web pages. It downloads a URL and
// reduces the HTML to readable text for the model, dropping scripts,
// navigation, and other boilerplate.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parleyhq/parley/internal/httpkit"
	"github.com/parleyhq/parley/internal/tools"
)

const (
	// defaultTimeout is the HTTP request timeout for fetching pages.
	defaultTimeout = 30 * time.Second

	// maxBodyBytes caps the response body read (5 MB).
	maxBodyBytes int64 = 5 * 1024 * 1024

	// DefaultMaxChars is the default character limit for extracted text.
	DefaultMaxChars = 50000
)

// Result holds the fetched and extracted content from a URL.
type Result struct {
	URL        string
	Title      string
	Text       string
	Truncated  bool
	StatusCode int
}

// Fetcher downloads and extracts readable content from web pages.
type Fetcher struct {
	client   *http.Client
	maxChars int
}

// New creates a Fetcher. maxChars limits extracted text length per
// fetch; zero uses DefaultMaxChars.
func New(maxChars int) *Fetcher {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Fetcher{
		client:   httpkit.NewClient(httpkit.WithTimeout(defaultTimeout)),
		maxChars: maxChars,
	}
}

// Fetch downloads rawURL and extracts its readable text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.7")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		httpkit.DrainAndClose(resp.Body, 1024)
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := &Result{URL: rawURL, StatusCode: resp.StatusCode}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml"):
		result.Title, result.Text = extractReadable(string(body))
	case utf8.Valid(body):
		result.Text = string(body)
	default:
		result.Text = fmt.Sprintf("Binary content (%s), %d bytes", contentType, len(body))
		return result, nil
	}

	if utf8.RuneCountInString(result.Text) > f.maxChars {
		result.Text = truncateRunes(result.Text, f.maxChars)
		result.Truncated = true
	}

	return result, nil
}

// Tool returns the registry descriptor for web_fetch.
func (f *Fetcher) Tool() *tools.Tool {
	return &tools.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable text content. Use this to look up information from a specific URL.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to fetch.",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, _ := args["url"].(string)
			if url == "" {
				return "", fmt.Errorf("url is required")
			}

			result, err := f.Fetch(ctx, url)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			if result.Title != "" {
				fmt.Fprintf(&b, "Title: %s\n\n", result.Title)
			}
			b.WriteString(result.Text)
			if result.Truncated {
				b.WriteString("\n\n[content truncated]")
			}
			return b.String(), nil
		},
	}
}

// truncateRunes cuts s to at most maxChars runes without splitting a
// multi-byte character.
func truncateRunes(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
