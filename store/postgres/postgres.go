package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/researchchat/store"
)

// foreignKeyViolation is the SQLSTATE of a failed REFERENCES check.
const foreignKeyViolation = "23503"

// DBPool is the subset of *pgxpool.Pool the store uses.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	pool   DBPool
	prefix string
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Options configures the Postgres connection.
type Options struct {
	ConnString  string
	TablePrefix string // prepended to every table name, default none
}

// New connects to Postgres and creates the schema.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	s := NewWithPool(pool, opts.TablePrefix)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool creates a store on an existing pool, such as a pgxmock pool.
// It does not create the schema.
func NewWithPool(pool DBPool, tablePrefix string) *Store {
	return &Store{pool: pool, prefix: tablePrefix, now: time.Now}
}

func (s *Store) sessions() string  { return s.prefix + "sessions" }
func (s *Store) messages() string  { return s.prefix + "messages" }
func (s *Store) documents() string { return s.prefix + "documents" }

// InitSchema creates the tables if they don't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			last_message TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES %[1]s (id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_session ON %[2]s (session_id, seq);
		CREATE TABLE IF NOT EXISTS %[3]s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES %[1]s (id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			file_hash TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			size BIGINT NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			chunk_count INTEGER NOT NULL DEFAULT 0,
			uploaded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[3]s_session ON %[3]s (session_id, seq);
	`, s.sessions(), s.messages(), s.documents())

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) sessionQuery() string {
	return fmt.Sprintf(`SELECT s.id, s.title, s.created_at, s.updated_at, s.message_count, s.last_message,
		(SELECT COUNT(*) FROM %s d WHERE d.session_id = s.id) FROM %s s`, s.documents(), s.sessions())
}

func scanSession(row pgx.Row) (*store.Session, error) {
	var (
		sess store.Session
		docs int64
	)
	if err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt,
		&sess.MessageCount, &sess.LastMessage, &docs); err != nil {
		return nil, err
	}
	sess.DocumentCount = int(docs)
	return &sess, nil
}

func (s *Store) CreateSession(ctx context.Context, title string) (*store.Session, error) {
	sess := store.NewSession(title, s.now())
	query := fmt.Sprintf(`INSERT INTO %s (id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)`, s.sessions())
	if _, err := s.pool.Exec(ctx, query, sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, s.sessionQuery()+` WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*store.Session, error) {
	rows, err := s.pool.Query(ctx, s.sessionQuery()+` ORDER BY s.updated_at DESC`)
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
	query := fmt.Sprintf(`UPDATE %s SET title = $1, updated_at = $2 WHERE id = $3`, s.sessions())
	tag, err := s.pool.Exec(ctx, query, title, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return expectRow(tag, "session", id)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.sessions()), id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return expectRow(tag, "session", id)
}

// SaveMessage inserts the message and bumps the session counters in one
// statement. The last message preview only changes for user messages.
func (s *Store) SaveMessage(ctx context.Context, m *store.Message) error {
	store.PrepareMessage(m, s.now())
	var metadata []byte
	if len(m.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := fmt.Sprintf(`
		WITH inserted AS (
			INSERT INTO %s (id, session_id, role, content, type, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING session_id
		)
		UPDATE %s SET message_count = message_count + 1, updated_at = $7,
			last_message = CASE WHEN $3 = 'user' THEN $8 ELSE last_message END
		WHERE id = (SELECT session_id FROM inserted)
	`, s.messages(), s.sessions())

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.SessionID, string(m.Role), m.Content, m.Type, metadata, m.CreatedAt, store.Preview(m.Content))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("session %s: %w", m.SessionID, store.ErrNotFound)
		}
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := s.exists(ctx, sessionID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, session_id, role, content, type, metadata, created_at
		FROM %s WHERE session_id = $1 ORDER BY seq`, s.messages())
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		var (
			m        store.Message
			role     string
			metadata []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Type, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = store.Role(role)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
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
	store.PrepareDocument(d, s.now())
	query := fmt.Sprintf(`INSERT INTO %s (id, session_id, filename, file_hash, path, size, content_type, chunk_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.documents())
	_, err := s.pool.Exec(ctx, query,
		d.ID, d.SessionID, d.Filename, d.FileHash, d.Path, d.Size, d.ContentType, d.ChunkCount, d.UploadedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("session %s: %w", d.SessionID, store.ErrNotFound)
		}
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, sessionID string) ([]*store.Document, error) {
	if err := s.exists(ctx, sessionID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, session_id, filename, file_hash, path, size, content_type, chunk_count, uploaded_at
		FROM %s WHERE session_id = $1 ORDER BY seq`, s.documents())
	rows, err := s.pool.Query(ctx, query, sessionID)
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
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, sessionID, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1 AND id = $2`, s.documents())
	tag, err := s.pool.Exec(ctx, query, sessionID, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return expectRow(tag, "document", id)
}

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1`, s.sessions()), id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	return nil
}

func expectRow(tag pgconn.CommandTag, kind, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
