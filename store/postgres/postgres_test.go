package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/store"
)

var fixed = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := NewWithPool(mock, "")
	s.now = func() time.Time { return fixed }
	return s, mock
}

var sessionCols = []string{"id", "title", "created_at", "updated_at", "message_count", "last_message", "count"}

func TestStore_InitSchema(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS sessions")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TablePrefix(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	s := NewWithPool(mock, "rc_")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rc_sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.DeleteSession(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSession(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions (id, title, created_at, updated_at)")).
		WithArgs(pgxmock.AnyArg(), "Sohbet 2025-04-01 12:00", fixed, fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess, err := s.CreateSession(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "Sohbet 2025-04-01 12:00", sess.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetSession(t *testing.T) {
	s, mock := newMock(t)
	rows := pgxmock.NewRows(sessionCols).
		AddRow("s1", "Başlık", fixed, fixed.Add(time.Minute), 4, "son mesaj", int64(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.title")).
		WithArgs("s1").
		WillReturnRows(rows)

	sess, err := s.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, &store.Session{
		ID:            "s1",
		Title:         "Başlık",
		CreatedAt:     fixed,
		UpdatedAt:     fixed.Add(time.Minute),
		MessageCount:  4,
		LastMessage:   "son mesaj",
		DocumentCount: 2,
	}, sess)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.title")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListSessions(t *testing.T) {
	s, mock := newMock(t)
	rows := pgxmock.NewRows(sessionCols).
		AddRow("new", "Yeni", fixed, fixed.Add(time.Hour), 1, "", int64(0)).
		AddRow("old", "Eski", fixed, fixed, 0, "", int64(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY s.updated_at DESC")).WillReturnRows(rows)

	list, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, 1, list[1].DocumentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateSessionTitle_NotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET title = $1")).
		WithArgs("x", fixed, "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSessionTitle(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveMessage(t *testing.T) {
	s, mock := newMock(t)
	meta := map[string]any{"intent": "rag_search"}
	metaJSON, _ := json.Marshal(meta)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages (id, session_id, role, content, type, metadata, created_at)")).
		WithArgs(pgxmock.AnyArg(), "s1", "user", "PDF'i özetle", "text", metaJSON, fixed, "PDF'i özetle").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	m := &store.Message{SessionID: "s1", Role: store.RoleUser, Content: "PDF'i özetle", Metadata: meta}
	require.NoError(t, s.SaveMessage(context.Background(), m))
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, fixed, m.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveMessage_UnknownSession(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnError(&pgconn.PgError{Code: foreignKeyViolation})

	err := s.SaveMessage(context.Background(), &store.Message{SessionID: "nope", Role: store.RoleAI, Content: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadMessages(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	rows := pgxmock.NewRows([]string{"id", "session_id", "role", "content", "type", "metadata", "created_at"}).
		AddRow("m1", "s1", "user", "soru", "text", []byte(nil), fixed).
		AddRow("m2", "s1", "ai", "cevap", "text", []byte(`{"intent":"gemini"}`), fixed.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE session_id = $1 ORDER BY seq")).
		WithArgs("s1").
		WillReturnRows(rows)

	msgs, err := s.LoadMessages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Nil(t, msgs[0].Metadata)
	assert.Equal(t, store.RoleAI, msgs[1].Role)
	assert.Equal(t, "gemini", msgs[1].Metadata["intent"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadMessages_UnknownSession(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sessions")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LoadMessages(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Documents(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(pgxmock.AnyArg(), "s1", "ders.pdf", "h1", "uploads/s1/ders.pdf", int64(10), "application/pdf", 3, fixed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	d := &store.Document{SessionID: "s1", Filename: "ders.pdf", FileHash: "h1", Path: "uploads/s1/ders.pdf",
		Size: 10, ContentType: "application/pdf", ChunkCount: 3}
	require.NoError(t, s.SaveDocument(ctx, d))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sessions")).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE session_id = $1 ORDER BY seq")).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "filename", "file_hash", "path", "size", "content_type", "chunk_count", "uploaded_at"}).
			AddRow(d.ID, "s1", "ders.pdf", "h1", "uploads/s1/ders.pdf", int64(10), "application/pdf", 3, fixed))
	docs, err := s.ListDocuments(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, d, docs[0])

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE session_id = $1 AND id = $2")).
		WithArgs("s1", "missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, s.DeleteDocument(ctx, "s1", "missing"), store.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
