package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// WebPage fetches a URL and returns its readable text.
type WebPage struct {
	MaxChars   int
	HTTPClient *http.Client
}

// NewWebPage creates the page reader. Output is cut to maxChars runes.
func NewWebPage(maxChars int) *WebPage {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &WebPage{MaxChars: maxChars, HTTPClient: defaultClient}
}

func (w *WebPage) Name() string { return "read_webpage" }

func (w *WebPage) Description() string {
	return "Downloads a web page and returns its title and main text. Input must be a full http(s) URL."
}

func (w *WebPage) Call(ctx context.Context, input string) (string, error) {
	u := strings.TrimSpace(input)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "", fmt.Errorf("invalid url %q", u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "researchchat/1.0")

	client := w.HTTPClient
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Service: "webpage", Code: resp.StatusCode}
	}

	return ExtractText(io.LimitReader(resp.Body, 5<<20), w.MaxChars)
}

// ExtractText returns the title and visible text of an HTML document,
// preferring <article> and <main> over the whole body.
func ExtractText(r io.Reader, maxChars int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	content := doc.Find("article").First()
	if content.Length() == 0 {
		content = doc.Find("main").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	var parts []string
	content.Find("h1, h2, h3, h4, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		if t := strings.Join(strings.Fields(content.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	}

	text := strings.Join(parts, "\n")
	if r := []rune(text); maxChars > 0 && len(r) > maxChars {
		text = string(r[:maxChars]) + "..."
	}
	if title != "" {
		text = "Title: " + title + "\n\n" + text
	}
	return text, nil
}
