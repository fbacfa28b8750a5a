package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/log"
)

func TestManager_PerSessionIndexes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	m, err := NewManager(root, 2, &wordEmbedder{}, log.Discard, WithThreshold(0))
	require.NoError(t, err)
	defer m.Close()

	a, err := m.Get("a")
	require.NoError(t, err)
	again, err := m.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, again)

	b, err := m.Get("b")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, _, err = a.AddText(ctx, "kediler.txt", catText)
	require.NoError(t, err)
	assert.Equal(t, 1, a.DocumentCount())
	assert.Zero(t, b.DocumentCount())
	assert.DirExists(t, filepath.Join(root, "a"))
}

func TestManager_EvictionKeepsData(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(t.TempDir(), 1, &wordEmbedder{}, log.Discard)
	require.NoError(t, err)

	a, err := m.Get("a")
	require.NoError(t, err)
	_, _, err = a.AddText(ctx, "go.md", goText)
	require.NoError(t, err)

	_, err = m.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	reopened, err := m.Get("a")
	require.NoError(t, err)
	assert.NotSame(t, a, reopened)
	assert.Equal(t, []string{"go.md"}, reopened.Filenames())
}

func TestManager_Remove(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, 4, &wordEmbedder{}, log.Discard)
	require.NoError(t, err)

	_, err = m.Get("gone")
	require.NoError(t, err)
	require.NoError(t, m.Remove("gone"))
	assert.Zero(t, m.Len())
	_, err = os.Stat(filepath.Join(root, "gone"))
	assert.True(t, os.IsNotExist(err))
}

func TestManager_RejectsUnsafeIDs(t *testing.T) {
	m, err := NewManager(t.TempDir(), 4, &wordEmbedder{}, log.Discard)
	require.NoError(t, err)
	for _, id := range []string{"", ".", "..", "../x", `a\b`} {
		_, err := m.Get(id)
		assert.ErrorIs(t, err, ErrInvalidSession, id)
	}
}
