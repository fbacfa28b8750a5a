package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
)

const youtubeAPI = "https://www.googleapis.com/youtube/v3"

// YouTubeSearch finds videos through the YouTube Data API v3.
type YouTubeSearch struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	HTTPClient *http.Client
}

// NewYouTubeSearch creates the search tool. An empty apiKey falls back to
// YOUTUBE_API_KEY.
func NewYouTubeSearch(apiKey string) (*YouTubeSearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: YOUTUBE_API_KEY", ErrMissingAPIKey)
	}
	return &YouTubeSearch{APIKey: apiKey, BaseURL: youtubeAPI, MaxResults: 3, HTTPClient: defaultClient}, nil
}

func (y *YouTubeSearch) Name() string { return "youtube_search" }

func (y *YouTubeSearch) Description() string {
	return "Searches YouTube and returns the most relevant video titles, URLs and descriptions. " +
		"Input should be a search query such as 'yapay zeka trendleri'."
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet youtubeSnippet `json:"snippet"`
	} `json:"items"`
}

type youtubeSnippet struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ChannelTitle string   `json:"channelTitle"`
	PublishedAt  string   `json:"publishedAt"`
	Tags         []string `json:"tags"`
}

func (y *YouTubeSearch) Call(ctx context.Context, input string) (string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("order", "relevance")
	params.Set("q", input)
	params.Set("maxResults", fmt.Sprintf("%d", y.MaxResults))
	params.Set("key", y.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	var result youtubeSearchResponse
	if err := doJSON(y.HTTPClient, req, "youtube", &result); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, item := range result.Items {
		if item.ID.VideoID == "" {
			continue
		}
		fmt.Fprintf(&sb, "Başlık: %s, URL: https://www.youtube.com/watch?v=%s\nKanal: %s\nAçıklama: %s\n\n",
			item.Snippet.Title, item.ID.VideoID, item.Snippet.ChannelTitle, item.Snippet.Description)
	}
	if sb.Len() == 0 {
		return "Bu konuda video bulunamadı.", nil
	}
	return sb.String(), nil
}

// YouTubeVideo returns the full metadata of one video: title, channel, tags
// and the complete description, which often carries chapters and a summary.
type YouTubeVideo struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewYouTubeVideo creates the video details tool.
func NewYouTubeVideo(apiKey string) (*YouTubeVideo, error) {
	if apiKey == "" {
		apiKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: YOUTUBE_API_KEY", ErrMissingAPIKey)
	}
	return &YouTubeVideo{APIKey: apiKey, BaseURL: youtubeAPI, HTTPClient: defaultClient}, nil
}

func (y *YouTubeVideo) Name() string { return "youtube_video" }

func (y *YouTubeVideo) Description() string {
	return "Returns the title, channel, tags and full description of a YouTube video. " +
		"Input must be a YouTube video URL or id."
}

var videoIDPattern = regexp.MustCompile(`(?:v=|youtu\.be/|shorts/|embed/)([A-Za-z0-9_-]{11})`)

// VideoID extracts the 11 character id from a URL, or returns input when it
// already is an id.
func VideoID(input string) string {
	input = strings.TrimSpace(input)
	if m := videoIDPattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	return input
}

type youtubeVideosResponse struct {
	Items []struct {
		Snippet youtubeSnippet `json:"snippet"`
	} `json:"items"`
}

func (y *YouTubeVideo) Call(ctx context.Context, input string) (string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", VideoID(input))
	params.Set("key", y.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.BaseURL+"/videos?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	var result youtubeVideosResponse
	if err := doJSON(y.HTTPClient, req, "youtube", &result); err != nil {
		return "", err
	}
	if len(result.Items) == 0 {
		return "Video bulunamadı.", nil
	}

	s := result.Items[0].Snippet
	var sb strings.Builder
	fmt.Fprintf(&sb, "Başlık: %s\nKanal: %s\nYayın: %s\n", s.Title, s.ChannelTitle, s.PublishedAt)
	if len(s.Tags) > 0 {
		fmt.Fprintf(&sb, "Etiketler: %s\n", strings.Join(s.Tags, ", "))
	}
	fmt.Fprintf(&sb, "\n%s", s.Description)
	return sb.String(), nil
}
