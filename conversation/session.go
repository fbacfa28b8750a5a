package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/semaphore"

	"github.com/smallnest/researchchat/agent"
	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/store"
	"github.com/smallnest/researchchat/testparams"
)

// ErrEmptyMessage is returned for a turn without text.
var ErrEmptyMessage = errors.New("empty message")

// DocumentsFunc returns the document index of a session. A nil Documents
// means the session has none.
type DocumentsFunc func(sessionID string) (Documents, error)

// Session is a live conversation. Turns run one at a time in arrival order.
type Session struct {
	id     string
	orch   *Orchestrator
	store  store.Store
	docs   DocumentsFunc
	logger log.Logger
	now    func() time.Time

	sem   *semaphore.Weighted
	state *State
}

// NewSession creates a live session for an existing stored session. docs
// may be nil when documents are disabled.
func NewSession(id string, orch *Orchestrator, st store.Store, docs DocumentsFunc, logger log.Logger) *Session {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Session{
		id:     id,
		orch:   orch,
		store:  st,
		docs:   docs,
		logger: logger,
		now:    time.Now,
		sem:    semaphore.NewWeighted(1),
		state:  orch.NewState(id),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func (s *Session) lock(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

func (s *Session) unlock() { s.sem.Release(1) }

// ProcessMessage runs one user turn. It waits for earlier turns of the same
// session. The user message and the answer are saved to the store; saving
// failures are logged and do not fail the turn.
func (s *Session) ProcessMessage(ctx context.Context, req Request, notifier event.Notifier) (*Reply, error) {
	if req.Message == "" && req.Payload == nil {
		return nil, ErrEmptyMessage
	}
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	return s.process(ctx, req, notifier), nil
}

// HandleTestParameters applies a structured reply from the parameter UI.
// The parameter flow must still be in progress when the turn starts.
func (s *Session) HandleTestParameters(ctx context.Context, payload map[string]any, notifier event.Notifier) (*Reply, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	if !s.state.Params.InProgress() {
		return nil, agent.E(agent.KindPrecondition, "test parameters", testparams.ErrNotCollecting)
	}
	return s.process(ctx, Request{Payload: payload}, notifier), nil
}

// process runs a turn. The caller holds the session lock.
func (s *Session) process(ctx context.Context, req Request, notifier event.Notifier) *Reply {
	if req.Payload == nil {
		s.saveUserMessage(ctx, req.Message)
	}
	docs, err := s.documents()
	if err != nil {
		s.logger.Warn("session %s: open documents: %v", s.id, err)
	}

	reply, err := s.orch.Turn(ctx, s.state, req, docs, notifier)
	if err != nil {
		s.logger.Error("session %s: turn failed: %v", s.id, err)
		s.save(ctx, store.RoleSystem, reply.Content, reply)
		return reply
	}
	if reply.Content != "" {
		s.save(ctx, store.RoleAI, reply.Content, reply)
	}
	return reply
}

func (s *Session) documents() (Documents, error) {
	if s.docs == nil {
		return nil, nil
	}
	return s.docs(s.id)
}

func (s *Session) saveUserMessage(ctx context.Context, text string) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveMessage(ctx, &store.Message{SessionID: s.id, Role: store.RoleUser, Content: text}); err != nil {
		s.logger.Warn("session %s: save user message: %v", s.id, err)
		return
	}
	info, err := s.store.GetSession(ctx, s.id)
	if err != nil || info.MessageCount != 1 {
		return
	}
	if err := s.store.UpdateSessionTitle(ctx, s.id, store.AutoTitle(text, s.now())); err != nil {
		s.logger.Warn("session %s: set title: %v", s.id, err)
	}
}

func (s *Session) save(ctx context.Context, role store.Role, content string, reply *Reply) {
	if s.store == nil || content == "" {
		return
	}
	m := &store.Message{
		SessionID: s.id,
		Role:      role,
		Content:   content,
		Metadata:  map[string]any{"intent": string(reply.Intent)},
	}
	if reply.Test != nil {
		m.Type = "test"
	}
	if err := s.store.SaveMessage(ctx, m); err != nil {
		s.logger.Warn("session %s: save %s message: %v", s.id, role, err)
	}
}

// Load restores the chat history from the store.
func (s *Session) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	msgs, err := s.store.LoadMessages(ctx, s.id)
	if err != nil {
		return fmt.Errorf("load messages of %s: %w", s.id, err)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.state.load(fromStore(msgs))
	s.state.trim(s.orch.maxHistory)
	return nil
}

// LoadFromMessages replaces the history with msgs. System messages in msgs
// are skipped; the session's system prompt is kept.
func (s *Session) LoadFromMessages(ctx context.Context, msgs []*store.Message) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.state.load(fromStore(msgs))
	return nil
}

func fromStore(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case store.RoleUser:
			out = append(out, Message{Role: llms.ChatMessageTypeHuman, Content: m.Content})
		case store.RoleAI:
			out = append(out, Message{Role: llms.ChatMessageTypeAI, Content: m.Content})
		}
	}
	return out
}

// Reset reverts the conversation to its initial state. Stored messages are
// kept.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.state = s.orch.NewState(s.id)
	return nil
}

// History returns a copy of the chat history without the system prompt.
func (s *Session) History(ctx context.Context) ([]Message, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	out := make([]Message, 0, len(s.state.Messages))
	for _, m := range s.state.Messages {
		if m.Role != llms.ChatMessageTypeSystem {
			out = append(out, m)
		}
	}
	return out, nil
}

// Stats describes the conversation and its document index.
func (s *Session) Stats(ctx context.Context) (Stats, error) {
	if err := s.lock(ctx); err != nil {
		return Stats{}, err
	}
	stats := s.state.stats()
	s.unlock()

	docs, err := s.documents()
	if err != nil {
		return stats, err
	}
	if docs != nil {
		stats.RAGEnabled = true
		ds := docs.Stats()
		stats.VectorStoreStats = &ds
	}
	return stats, nil
}
