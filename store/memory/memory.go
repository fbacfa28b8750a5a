// Package memory is an in-process store.Store.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/smallnest/researchchat/store"
)

type session struct {
	info      store.Session
	messages  []*store.Message
	documents []*store.Document
}

// Store keeps everything in maps guarded by a mutex. Returned values are
// copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{sessions: make(map[string]*session), now: time.Now}
}

func (s *Store) get(id string) (*session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return sess, nil
}

func (sess *session) snapshot() *store.Session {
	info := sess.info
	info.DocumentCount = len(sess.documents)
	return &info
}

func (s *Store) CreateSession(_ context.Context, title string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &session{info: *store.NewSession(title, s.now())}
	s.sessions[sess.info.ID] = sess
	return sess.snapshot(), nil
}

func (s *Store) GetSession(_ context.Context, id string) (*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return sess.snapshot(), nil
}

func (s *Store) ListSessions(_ context.Context) ([]*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.Session, 0, len(s.sessions))
	for sess := range maps.Values(s.sessions) {
		out = append(out, sess.snapshot())
	}
	slices.SortFunc(out, func(a, b *store.Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

func (s *Store) UpdateSessionTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	sess.info.Title = title
	sess.info.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(id); err != nil {
		return err
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) SaveMessage(_ context.Context, m *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.get(m.SessionID)
	if err != nil {
		return err
	}
	store.PrepareMessage(m, s.now())
	c := *m
	c.Metadata = maps.Clone(m.Metadata)
	sess.messages = append(sess.messages, &c)
	sess.info.Touch(m)
	return nil
}

func (s *Store) LoadMessages(_ context.Context, sessionID string) ([]*store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Message, len(sess.messages))
	for i, m := range sess.messages {
		c := *m
		c.Metadata = maps.Clone(m.Metadata)
		out[i] = &c
	}
	return out, nil
}

func (s *Store) SaveDocument(_ context.Context, d *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.get(d.SessionID)
	if err != nil {
		return err
	}
	store.PrepareDocument(d, s.now())
	c := *d
	sess.documents = append(sess.documents, &c)
	return nil
}

func (s *Store) ListDocuments(_ context.Context, sessionID string) ([]*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Document, len(sess.documents))
	for i, d := range sess.documents {
		c := *d
		out[i] = &c
	}
	slices.SortStableFunc(out, func(a, b *store.Document) int {
		return cmp.Compare(a.UploadedAt.UnixNano(), b.UploadedAt.UnixNano())
	})
	return out, nil
}

func (s *Store) DeleteDocument(_ context.Context, sessionID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(sess.documents, func(d *store.Document) bool { return d.ID == id })
	if i < 0 {
		return fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	sess.documents = slices.Delete(sess.documents, i, i+1)
	return nil
}

func (s *Store) Close() error { return nil }
