// Package storetest runs the behavior every store.Store must show.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/store"
)

// Run exercises a fresh store returned by open. open is called once per
// subtest.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("sessions", func(t *testing.T) { testSessions(t, open(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, open(t)) })
	t.Run("documents", func(t *testing.T) { testDocuments(t, open(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDeleteCascades(t, open(t)) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, open(t)) })
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "İlk sohbet")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "İlk sohbet", first.Title)

	untitled, err := s.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, untitled.Title, "Sohbet ")

	got, err := s.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "İlk sohbet", got.Title)
	assert.WithinDuration(t, first.CreatedAt, got.CreatedAt, time.Second)

	require.NoError(t, s.UpdateSessionTitle(ctx, first.ID, "Yeni başlık"))
	got, err = s.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Yeni başlık", got.Title)

	// a new message moves the session to the top
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: untitled.ID, Role: store.RoleUser, Content: "merhaba"}))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, untitled.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.Equal(t, "merhaba", list[0].LastMessage)
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "mesajlar")
	require.NoError(t, err)

	msgs := []*store.Message{
		{SessionID: sess.ID, Role: store.RoleUser, Content: "Yapay zekayı araştır"},
		{SessionID: sess.ID, Role: store.RoleAI, Content: "Araştırma tamamlandı", Metadata: map[string]any{"intent": "web_research"}},
		{SessionID: sess.ID, Role: store.RoleUser, Content: "Teşekkürler"},
	}
	for _, m := range msgs {
		require.NoError(t, s.SaveMessage(ctx, m))
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, store.MessageText, m.Type)
		assert.False(t, m.CreatedAt.IsZero())
	}

	loaded, err := s.LoadMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, m := range loaded {
		assert.Equal(t, msgs[i].ID, m.ID)
		assert.Equal(t, msgs[i].Role, m.Role)
		assert.Equal(t, msgs[i].Content, m.Content)
		assert.Equal(t, sess.ID, m.SessionID)
	}
	assert.Equal(t, "web_research", loaded[1].Metadata["intent"])

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MessageCount)
	assert.Equal(t, "Teşekkürler", got.LastMessage)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	err = s.SaveMessage(ctx, &store.Message{SessionID: "missing", Role: store.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "dokümanlar")
	require.NoError(t, err)

	doc := &store.Document{
		SessionID:   sess.ID,
		Filename:    "ders.pdf",
		FileHash:    "abc123",
		Path:        "uploads/ders.pdf",
		Size:        2048,
		ContentType: "application/pdf",
		ChunkCount:  4,
	}
	require.NoError(t, s.SaveDocument(ctx, doc))
	assert.NotEmpty(t, doc.ID)

	other := &store.Document{SessionID: sess.ID, Filename: "notlar.txt", FileHash: "def456", ChunkCount: 1}
	require.NoError(t, s.SaveDocument(ctx, other))

	docs, err := s.ListDocuments(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "ders.pdf", docs[0].Filename)
	assert.Equal(t, "abc123", docs[0].FileHash)
	assert.Equal(t, int64(2048), docs[0].Size)
	assert.Equal(t, 4, docs[0].ChunkCount)
	assert.Equal(t, "notlar.txt", docs[1].Filename)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DocumentCount)

	require.NoError(t, s.DeleteDocument(ctx, sess.ID, doc.ID))
	docs, err = s.ListDocuments(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, other.ID, docs[0].ID)

	assert.ErrorIs(t, s.DeleteDocument(ctx, sess.ID, doc.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.SaveDocument(ctx, &store.Document{SessionID: "missing", Filename: "x"}), store.ErrNotFound)
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "silinecek")
	require.NoError(t, err)
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: store.RoleUser, Content: "a"}))
	require.NoError(t, s.SaveDocument(ctx, &store.Document{SessionID: sess.ID, Filename: "a.pdf"}))

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.LoadMessages(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ListDocuments(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateSessionTitle(ctx, "nope", "x"), store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, "nope"), store.ErrNotFound)
	_, err = s.LoadMessages(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
