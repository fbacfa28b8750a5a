package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestConfigOptions(t *testing.T) {
	opts, err := Config{APIKey: "k"}.options()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	opts, err = Config{APIKey: "k", Temperature: 0.7, MaxTokens: 2048}.options()
	require.NoError(t, err)
	assert.Len(t, opts, 5)
}

func TestNewEmbedder(t *testing.T) {
	client := embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = []float32{float32(len(s))}
		}
		return out, nil
	})
	e, err := NewEmbedder(client)
	require.NoError(t, err)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}}, vecs)

	v, err := e.EmbedQuery(context.Background(), "line\nbreak")
	require.NoError(t, err)
	assert.Equal(t, []float32{10}, v)
}
