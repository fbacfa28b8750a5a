package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// BraveSearch searches the web through the Brave Search API.
type BraveSearch struct {
	APIKey     string
	BaseURL    string
	Count      int
	Country    string
	Lang       string
	HTTPClient *http.Client
}

type BraveOption func(*BraveSearch)

// WithBraveBaseURL sets the base URL for the Brave Search API.
func WithBraveBaseURL(baseURL string) BraveOption {
	return func(b *BraveSearch) {
		b.BaseURL = baseURL
	}
}

// WithBraveCount sets the number of results to return (1-20).
func WithBraveCount(count int) BraveOption {
	return func(b *BraveSearch) {
		b.Count = min(max(count, 1), 20)
	}
}

// WithBraveLocale sets the country and search language (e.g. "TR", "tr").
func WithBraveLocale(country, lang string) BraveOption {
	return func(b *BraveSearch) {
		b.Country = country
		b.Lang = lang
	}
}

// NewBraveSearch creates a new BraveSearch tool.
// If apiKey is empty, it tries to read from BRAVE_API_KEY environment variable.
func NewBraveSearch(apiKey string, opts ...BraveOption) (*BraveSearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("BRAVE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: BRAVE_API_KEY", ErrMissingAPIKey)
	}

	b := &BraveSearch{
		APIKey:     apiKey,
		BaseURL:    "https://api.search.brave.com/res/v1/web/search",
		Count:      10,
		Country:    "TR",
		Lang:       "tr",
		HTTPClient: defaultClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the name of the tool.
func (b *BraveSearch) Name() string {
	return "brave_search"
}

// Description returns the description of the tool.
func (b *BraveSearch) Description() string {
	return "Searches the web with Brave. Useful for current information. Input should be a search query."
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Call executes the search.
func (b *BraveSearch) Call(ctx context.Context, input string) (string, error) {
	params := url.Values{}
	params.Set("q", input)
	params.Set("count", fmt.Sprintf("%d", b.Count))
	if b.Country != "" {
		params.Set("country", b.Country)
	}
	if b.Lang != "" {
		params.Set("search_lang", b.Lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	var result braveResponse
	if err := doJSON(b.HTTPClient, req, "brave", &result); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, item := range result.Web.Results {
		fmt.Fprintf(&sb, "%d. Title: %s\nURL: %s\nDescription: %s\n\n", i+1, item.Title, item.URL, item.Description)
	}
	if sb.Len() == 0 {
		return noResults, nil
	}
	return sb.String(), nil
}
