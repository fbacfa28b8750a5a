package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBraveSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		assert.Equal(t, "tr", r.URL.Query().Get("search_lang"))
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"Go","url":"https://go.dev","description":"The Go language"}]}}`))
	}))
	defer server.Close()

	b, err := NewBraveSearch("secret", WithBraveBaseURL(server.URL), WithBraveCount(5))
	require.NoError(t, err)
	assert.Equal(t, "brave_search", b.Name())

	out, err := b.Call(context.Background(), "golang")
	require.NoError(t, err)
	assert.Equal(t, "1. Title: Go\nURL: https://go.dev\nDescription: The Go language\n\n", out)
}

func TestBraveSearch_CountClamp(t *testing.T) {
	b, err := NewBraveSearch("k", WithBraveCount(50), WithBraveLocale("US", "en"))
	require.NoError(t, err)
	assert.Equal(t, 20, b.Count)
	assert.Equal(t, "US", b.Country)

	WithBraveCount(0)(b)
	assert.Equal(t, 1, b.Count)
}

func TestBraveSearch_Errors(t *testing.T) {
	t.Setenv("BRAVE_API_KEY", "")
	_, err := NewBraveSearch("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	b, _ := NewBraveSearch("k", WithBraveBaseURL(server.URL))
	_, err = b.Call(context.Background(), "x")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestBraveSearch_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	b, _ := NewBraveSearch("k", WithBraveBaseURL(server.URL))
	out, err := b.Call(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, noResults, out)
}

func TestSerperSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "yapay zeka", body["q"])
		_, _ = w.Write([]byte(`{
			"answerBox": {"answer": "AI"},
			"organic": [{"title": "Yapay zeka", "link": "https://tr.wikipedia.org/wiki/Yapay_zeka", "snippet": "Makinelerin zekası"}]
		}`))
	}))
	defer server.Close()

	s, err := NewSerperSearch("key")
	require.NoError(t, err)
	s.BaseURL = server.URL

	out, err := s.Call(context.Background(), "yapay zeka")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Answer: AI\n\n"))
	assert.Contains(t, out, "1. Title: Yapay zeka\nURL: https://tr.wikipedia.org/wiki/Yapay_zeka")
}

func TestWebSearch_PicksConfiguredBackend(t *testing.T) {
	t.Setenv("SERPER_API_KEY", "")
	t.Setenv("BRAVE_API_KEY", "")

	s, err := WebSearch("s", "")
	require.NoError(t, err)
	assert.Equal(t, "web_search", s.Name())

	s, err = WebSearch("", "b")
	require.NoError(t, err)
	assert.Equal(t, "brave_search", s.Name())

	s, err = WebSearch("", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Nil(t, s)
}

func TestYouTubeSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "video", r.URL.Query().Get("type"))
		assert.Equal(t, "yt", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"items":[
			{"id":{"videoId":"abcdefghijk"},"snippet":{"title":"Ders 1","channelTitle":"Kanal","description":"Giriş"}},
			{"id":{},"snippet":{"title":"playlist"}}
		]}`))
	}))
	defer server.Close()

	y, err := NewYouTubeSearch("yt")
	require.NoError(t, err)
	y.BaseURL = server.URL

	out, err := y.Call(context.Background(), "ders")
	require.NoError(t, err)
	assert.Contains(t, out, "Başlık: Ders 1, URL: https://www.youtube.com/watch?v=abcdefghijk")
	assert.NotContains(t, out, "playlist")
}

func TestYouTubeVideo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos", r.URL.Path)
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"items":[{"snippet":{"title":"T","channelTitle":"C","tags":["a","b"],"description":"00:00 intro"}}]}`))
	}))
	defer server.Close()

	y, err := NewYouTubeVideo("yt")
	require.NoError(t, err)
	y.BaseURL = server.URL

	out, err := y.Call(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10")
	require.NoError(t, err)
	assert.Contains(t, out, "Etiketler: a, b")
	assert.Contains(t, out, "00:00 intro")
}

func TestVideoID(t *testing.T) {
	for in, want := range map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?si=x":           "dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":  "dQw4w9WgXcQ",
		" dQw4w9WgXcQ ":                               "dQw4w9WgXcQ",
	} {
		assert.Equal(t, want, VideoID(in), in)
	}
}

func TestWebPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Makale</title><script>var x;</script></head>
<body><nav>menu</nav><article><h1>Başlık</h1><p>Birinci   paragraf.</p><p>İkinci paragraf.</p></article><footer>alt</footer></body></html>`))
	}))
	defer server.Close()

	out, err := NewWebPage(0).Call(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Title: Makale\n\nBaşlık\nBirinci paragraf.\nİkinci paragraf.", out)
}

func TestWebPage_RejectsNonHTTP(t *testing.T) {
	_, err := NewWebPage(10).Call(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestExtractText_Truncates(t *testing.T) {
	out, err := ExtractText(strings.NewReader(`<body><p>abcdefghij</p></body>`), 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd...", out)
}
