package store

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session or document does not exist.
var ErrNotFound = errors.New("not found")

// Role is the author of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

const (
	// MessageText is the default message type.
	MessageText = "text"

	titleLimit       = 50
	lastMessageLimit = 100
)

// Session is one conversation.
type Session struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MessageCount  int       `json:"message_count"`
	LastMessage   string    `json:"last_message,omitempty"`
	DocumentCount int       `json:"document_count"`
}

// Message is one stored chat message.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Document records a file uploaded into a session.
type Document struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Filename    string    `json:"filename"`
	FileHash    string    `json:"file_hash"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	ChunkCount  int       `json:"chunk_count"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Store persists sessions, messages and documents.
type Store interface {
	// CreateSession creates a session. An empty title gets a dated default.
	CreateSession(ctx context.Context, title string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns all sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]*Session, error)
	UpdateSessionTitle(ctx context.Context, id, title string) error
	// DeleteSession removes a session with its messages and documents.
	DeleteSession(ctx context.Context, id string) error

	// SaveMessage appends m to its session, filling in ID, Type and
	// CreatedAt when they are empty.
	SaveMessage(ctx context.Context, m *Message) error
	// LoadMessages returns the messages of a session in insertion order.
	LoadMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// SaveDocument records d, filling in ID and UploadedAt when empty.
	SaveDocument(ctx context.Context, d *Document) error
	ListDocuments(ctx context.Context, sessionID string) ([]*Document, error)
	DeleteDocument(ctx context.Context, sessionID, id string) error

	Close() error
}

// NewSession builds a session with a fresh id.
func NewSession(title string, now time.Time) *Session {
	now = now.UTC()
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(now)
	}
	return &Session{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
}

// DefaultTitle is the title of a session created without one.
func DefaultTitle(now time.Time) string {
	return "Sohbet " + now.Format("2006-01-02 15:04")
}

// PrepareMessage fills the zero fields of m.
func PrepareMessage(m *Message, now time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = MessageText
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now.UTC()
	}
}

// PrepareDocument fills the zero fields of d.
func PrepareDocument(d *Document, now time.Time) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = now.UTC()
	}
}

// Touch applies a newly saved message to the session counters.
func (s *Session) Touch(m *Message) {
	s.MessageCount++
	s.UpdatedAt = m.CreatedAt
	if m.Role == RoleUser {
		s.LastMessage = Preview(m.Content)
	}
}

// Preview shortens a message for the session list.
func Preview(content string) string {
	return truncate(content, lastMessageLimit)
}

// AutoTitle derives a session title from the first user message: its first
// 50 characters with everything but letters, digits, spaces, '-' and '_'
// removed, then "..." when the message was longer. It falls back to
// DefaultTitle.
func AutoTitle(first string, now time.Time) string {
	first = strings.TrimSpace(first)
	title := strings.TrimSpace(truncate(first, titleLimit))
	title = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, title)
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle(now)
	}
	if utf8.RuneCountInString(first) > titleLimit {
		title += "..."
	}
	return title
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
