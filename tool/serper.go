package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// SerperSearch searches Google through the serper.dev API.
type SerperSearch struct {
	APIKey     string
	BaseURL    string
	Count      int
	Country    string
	Lang       string
	HTTPClient *http.Client
}

// NewSerperSearch creates a SerperSearch tool. An empty apiKey falls back to
// SERPER_API_KEY.
func NewSerperSearch(apiKey string) (*SerperSearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("SERPER_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: SERPER_API_KEY", ErrMissingAPIKey)
	}
	return &SerperSearch{
		APIKey:     apiKey,
		BaseURL:    "https://google.serper.dev/search",
		Count:      10,
		Country:    "tr",
		Lang:       "tr",
		HTTPClient: defaultClient,
	}, nil
}

func (s *SerperSearch) Name() string { return "web_search" }

func (s *SerperSearch) Description() string {
	return "Searches Google and returns titles, links and snippets. Input should be a search query."
}

type serperResponse struct {
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *SerperSearch) Call(ctx context.Context, input string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"q":   input,
		"num": s.Count,
		"gl":  s.Country,
		"hl":  s.Lang,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.APIKey)

	var result serperResponse
	if err := doJSON(s.HTTPClient, req, "serper", &result); err != nil {
		return "", err
	}

	var sb strings.Builder
	if ab := result.AnswerBox; ab != nil && (ab.Answer != "" || ab.Snippet != "") {
		fmt.Fprintf(&sb, "Answer: %s\n\n", strings.TrimSpace(ab.Answer+" "+ab.Snippet))
	}
	for i, item := range result.Organic {
		fmt.Fprintf(&sb, "%d. Title: %s\nURL: %s\nDescription: %s\n\n", i+1, item.Title, item.Link, item.Snippet)
	}
	if sb.Len() == 0 {
		return noResults, nil
	}
	return sb.String(), nil
}
