package openaicompat

import (
	"net/http"
	"os"

	"github.com/tmc/langchaingo/callbacks"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

type options struct {
	apiKey           string
	baseURL          string
	model            string
	embeddingModel   string
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
}

// Option configures the client.
type Option func(*options)

// WithAPIKey sets the API key. Defaults to OPENAI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(o *options) { o.apiKey = apiKey }
}

// WithBaseURL points the client at any OpenAI-compatible endpoint
// (OpenRouter, Ollama, vLLM, ...). Defaults to OPENAI_BASE_URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithEmbeddingModel sets the model used by CreateEmbedding.
func WithEmbeddingModel(model string) Option {
	return func(o *options) { o.embeddingModel = model }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCallbacksHandler sets a langchaingo callbacks handler.
func WithCallbacksHandler(h callbacks.Handler) Option {
	return func(o *options) { o.callbacksHandler = h }
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
