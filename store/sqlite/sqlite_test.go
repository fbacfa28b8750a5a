package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/store"
	"github.com/smallnest/researchchat/store/storetest"
)

func open(t *testing.T) store.Store {
	t.Helper()
	s, err := New(context.Background(), Options{Path: filepath.Join(t.TempDir(), "chat.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, open)
}

func TestStore_InMemory(t *testing.T) {
	s, err := New(context.Background(), Options{Path: ":memory:"})
	require.NoError(t, err)
	defer s.Close()

	sess, err := s.CreateSession(context.Background(), "bellek")
	require.NoError(t, err)
	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "bellek", got.Title)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := New(ctx, Options{Path: path})
	require.NoError(t, err)
	sess, err := s.CreateSession(ctx, "kalıcı")
	require.NoError(t, err)
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: store.RoleUser, Content: "merhaba"}))
	require.NoError(t, s.Close())

	s, err = New(ctx, Options{Path: path})
	require.NoError(t, err)
	defer s.Close()
	msgs, err := s.LoadMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "merhaba", msgs[0].Content)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}
