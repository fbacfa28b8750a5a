// Package gemini builds Gemini chat and embedding clients on langchaingo's
// googleai provider.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"
)

// ErrMissingAPIKey is returned when no GOOGLE_API_KEY is configured.
var ErrMissingAPIKey = errors.New("GOOGLE_API_KEY not set")

// Config selects the models and generation defaults.
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
}

func (c Config) options() ([]googleai.Option, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	embeddingModel := c.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	opts := []googleai.Option{
		googleai.WithAPIKey(c.APIKey),
		googleai.WithDefaultModel(model),
		googleai.WithDefaultEmbeddingModel(embeddingModel),
	}
	if c.MaxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(c.MaxTokens))
	}
	if c.Temperature > 0 {
		opts = append(opts, googleai.WithDefaultTemperature(c.Temperature))
	}
	return opts, nil
}

// New creates the Gemini client. It is both an llms.Model and an
// embeddings.EmbedderClient. Close it when done.
func New(ctx context.Context, cfg Config) (*googleai.GoogleAI, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// NewEmbedder wraps any embedding client, typically the one returned by New,
// in a batching langchaingo embedder.
func NewEmbedder(client embeddings.EmbedderClient) (*embeddings.EmbedderImpl, error) {
	e, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(64), embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return e, nil
}
