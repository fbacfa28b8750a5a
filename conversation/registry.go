package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/store"
)

// Registry keeps the live sessions of a process and creates them on demand
// from the store.
type Registry struct {
	orch    *Orchestrator
	store   store.Store
	indexes *rag.Manager
	logger  log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. indexes may be nil to disable documents.
func NewRegistry(orch *Orchestrator, st store.Store, indexes *rag.Manager, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Registry{
		orch:     orch,
		store:    st,
		indexes:  indexes,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) documents(sessionID string) (Documents, error) {
	x, err := r.indexes.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return x, nil
}

func (r *Registry) newSession(id string) *Session {
	var docs DocumentsFunc
	if r.indexes != nil {
		docs = r.documents
	}
	return NewSession(id, r.orch, r.store, docs, log.Named(r.logger, "session"))
}

// Create stores a new session and makes it live.
func (r *Registry) Create(ctx context.Context, title string) (*Session, *store.Session, error) {
	info, err := r.store.CreateSession(ctx, title)
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	s := r.newSession(info.ID)
	r.mu.Lock()
	r.sessions[info.ID] = s
	r.mu.Unlock()
	r.logger.Info("session %s created", info.ID)
	return s, info, nil
}

// Get returns the live session id, loading its history from the store the
// first time. An empty id creates a new session. Unknown ids wrap
// store.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		s, _, err := r.Create(ctx, "")
		return s, err
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	if _, err := r.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	s = r.newSession(id)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		return existing, nil
	}
	r.sessions[id] = s
	return s, nil
}

// Documents returns the document index of a session.
func (r *Registry) Documents(id string) (*rag.Index, error) {
	if r.indexes == nil {
		return nil, errors.New("documents are disabled")
	}
	return r.indexes.Get(id)
}

// Forget drops a live session from memory. Its stored data is kept.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Delete removes a session from the store, its document index and memory.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	r.Forget(id)
	if r.indexes != nil {
		if err := r.indexes.Remove(id); err != nil {
			return fmt.Errorf("remove documents of %s: %w", id, err)
		}
	}
	r.logger.Info("session %s deleted", id)
	return nil
}

// Store returns the backing store.
func (r *Registry) Store() store.Store { return r.store }

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close drops every live session and closes the document indexes.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	if r.indexes == nil {
		return nil
	}
	return r.indexes.Close()
}
