package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/researchchat/store"
)

// Store implements store.Store on a SQLite database file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Options configures the SQLite connection.
type Options struct {
	Path string // database file, ":memory:" for a private in-memory database
}

// New opens the database at opts.Path and creates the schema.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	dsn := opts.Path
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on&_busy_timeout=5000"
	} else {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	if opts.Path == ":memory:" {
		// every pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the tables if they don't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			last_message TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'ai', 'system')),
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			metadata TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, seq);
		CREATE TABLE IF NOT EXISTS documents (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			file_hash TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			chunk_count INTEGER NOT NULL DEFAULT 0,
			uploaded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_session ON documents (session_id, seq);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const sessionColumns = `s.id, s.title, s.created_at, s.updated_at, s.message_count, s.last_message,
	(SELECT COUNT(*) FROM documents d WHERE d.session_id = s.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*store.Session, error) {
	var sess store.Session
	err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt,
		&sess.MessageCount, &sess.LastMessage, &sess.DocumentCount)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	return &sess, nil
}

func (s *Store) CreateSession(ctx context.Context, title string) (*store.Session, error) {
	sess := store.NewSession(title, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*store.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions s ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return expectRow(res, "session", id)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectRow(res, "session", id)
}

func (s *Store) SaveMessage(ctx context.Context, m *store.Message) error {
	store.PrepareMessage(m, s.now())
	var metadata []byte
	if len(m.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `UPDATE sessions SET message_count = message_count + 1, updated_at = ? WHERE id = ?`
	args := []any{m.CreatedAt, m.SessionID}
	if m.Role == store.RoleUser {
		update = `UPDATE sessions SET message_count = message_count + 1, updated_at = ?, last_message = ? WHERE id = ?`
		args = []any{m.CreatedAt, store.Preview(m.Content), m.SessionID}
	}
	res, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if err := expectRow(res, "session", m.SessionID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, type, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, string(m.Role), m.Content, m.Type, nullable(metadata), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return tx.Commit()
}

func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := s.exists(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, type, metadata, created_at FROM messages WHERE session_id = ? ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		var (
			m        store.Message
			role     string
			metadata sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Type, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = store.Role(role)
		m.CreatedAt = m.CreatedAt.UTC()
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return out, nil
}

func (s *Store) SaveDocument(ctx context.Context, d *store.Document) error {
	if err := s.exists(ctx, d.SessionID); err != nil {
		return err
	}
	store.PrepareDocument(d, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, session_id, filename, file_hash, path, size, content_type, chunk_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SessionID, d.Filename, d.FileHash, d.Path, d.Size, d.ContentType, d.ChunkCount, d.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, sessionID string) ([]*store.Document, error) {
	if err := s.exists(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, filename, file_hash, path, size, content_type, chunk_count, uploaded_at
		FROM documents WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*store.Document
	for rows.Next() {
		var d store.Document
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Filename, &d.FileHash, &d.Path, &d.Size,
			&d.ContentType, &d.ChunkCount, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		d.UploadedAt = d.UploadedAt.UTC()
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, sessionID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE session_id = ? AND id = ?`, sessionID, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return expectRow(res, "document", id)
}

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	return nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
