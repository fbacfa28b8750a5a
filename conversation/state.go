package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/researchchat/event"
	"github.com/smallnest/researchchat/intent"
	"github.com/smallnest/researchchat/quiz"
	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/research"
	"github.com/smallnest/researchchat/testparams"
)

// DefaultMaxHistory is how many messages besides the system prompt are kept.
const DefaultMaxHistory = 50

// DefaultModelRetries is how often a failed chat answer is retried.
const DefaultModelRetries = 2

// DefaultWorkflowTimeout bounds a research run or a test generation.
const DefaultWorkflowTimeout = 30 * time.Minute

// ActionWebResearch is the pending action set by a research confirmation.
const ActionWebResearch = "web_research"

// Message is one turn of the chat history.
type Message struct {
	Role    llms.ChatMessageType `json:"role"`
	Content string               `json:"content"`
}

// Documents is the part of a session's document index a turn uses.
type Documents interface {
	Search(ctx context.Context, query string, k int) ([]rag.Result, error)
	DocumentCount() int
	Filenames() []string
	FullText(ctx context.Context, hashes ...string) (string, error)
	Stats() rag.Stats
}

// State is the conversation state of one session. It is not safe for
// concurrent use; Session serializes access.
type State struct {
	SessionID string
	Messages  []Message

	Intent        intent.Intent
	PendingAction string
	PendingTopic  string

	Research *research.Result

	RagContext    string
	HasDocContext bool

	Params       *testparams.Collector
	Test         *quiz.Test
	DocumentText string

	turn turn
}

// turn holds what only lives for the duration of one invocation.
type turn struct {
	input    string
	force    bool
	payload  map[string]any
	docs     Documents
	notifier event.Notifier
	reply    Reply

	researchErr error
	testErr     error
}

// NewState returns the initial state of a session: only the system prompt.
func NewState(sessionID, systemPrompt string, maxInvalid int) *State {
	st := &State{
		SessionID: sessionID,
		Params:    testparams.NewCollector(maxInvalid),
	}
	if systemPrompt != "" {
		st.Messages = []Message{{Role: llms.ChatMessageTypeSystem, Content: systemPrompt}}
	}
	return st
}

func (st *State) add(role llms.ChatMessageType, content string) {
	st.Messages = append(st.Messages, Message{Role: role, Content: content})
}

// say appends the assistant message of this turn.
func (st *State) say(content string) {
	st.add(llms.ChatMessageTypeAI, content)
	st.turn.reply.Content = content
}

// fail answers the turn with a user-visible error and reports it as an
// error event.
func (st *State) fail(agentName, content string) {
	st.say(content)
	st.turn.reply.Failed = true
	st.notify(event.New(event.Error, agentName, content, nil))
}

func (st *State) notify(e event.Event) {
	if st.turn.notifier != nil {
		st.turn.notifier.Notify(e)
	}
}

// clearRouting drops a pending confirmation and any parameter flow, so the
// next turn is classified from scratch.
func (st *State) clearRouting() {
	st.PendingAction = ""
	st.PendingTopic = ""
	if st.Params.InProgress() {
		st.Params.Abort()
	}
}

func (st *State) documentCount() int {
	if st.turn.docs == nil {
		return 0
	}
	return st.turn.docs.DocumentCount()
}

func (st *State) filenames() []string {
	if st.turn.docs == nil {
		return nil
	}
	return st.turn.docs.Filenames()
}

// trim keeps the leading system prompt and the last n other messages.
func (st *State) trim(n int) {
	if n <= 0 {
		return
	}
	var head []Message
	rest := st.Messages
	if len(rest) > 0 && rest[0].Role == llms.ChatMessageTypeSystem {
		head, rest = rest[:1], rest[1:]
	}
	if len(rest) <= n {
		return
	}
	kept := make([]Message, 0, len(head)+n)
	kept = append(kept, head...)
	st.Messages = append(kept, rest[len(rest)-n:]...)
}

// load replaces the history with saved messages, keeping the system prompt.
func (st *State) load(messages []Message) {
	var kept []Message
	if len(st.Messages) > 0 && st.Messages[0].Role == llms.ChatMessageTypeSystem {
		kept = append(kept, st.Messages[0])
	}
	for _, m := range messages {
		if m.Role == llms.ChatMessageTypeHuman || m.Role == llms.ChatMessageTypeAI {
			kept = append(kept, m)
		}
	}
	st.Messages = kept
}

// modelMessages converts the history for the model. The last user message
// is replaced with prompt when prompt is not empty, and assistant notes
// about declined research are left out.
func (st *State) modelMessages(prompt string) []llms.MessageContent {
	last := -1
	for i, m := range st.Messages {
		if m.Role == llms.ChatMessageTypeHuman {
			last = i
		}
	}
	out := make([]llms.MessageContent, 0, len(st.Messages))
	for i, m := range st.Messages {
		if m.Role == llms.ChatMessageTypeAI && strings.Contains(m.Content, declinedMarker) {
			continue
		}
		text := m.Content
		if i == last && prompt != "" {
			text = prompt
		}
		out = append(out, llms.TextParts(m.Role, text))
	}
	return out
}

// Stats describes a conversation.
type Stats struct {
	SessionID        string        `json:"session_id"`
	TotalMessages    int           `json:"total_messages"`
	UserMessages     int           `json:"user_messages"`
	AIMessages       int           `json:"ai_messages"`
	CurrentIntent    intent.Intent `json:"current_intent"`
	PendingAction    string        `json:"pending_action,omitempty"`
	HasResearch      bool          `json:"has_research_data"`
	LastResearch     string        `json:"last_research,omitempty"`
	TestStage        string        `json:"test_stage"`
	HasGeneratedTest bool          `json:"has_generated_test"`
	RAGEnabled       bool          `json:"rag_enabled"`
	VectorStoreStats *rag.Stats    `json:"vector_store_stats,omitempty"`
}

func (st *State) stats() Stats {
	s := Stats{
		SessionID:        st.SessionID,
		TotalMessages:    len(st.Messages),
		CurrentIntent:    st.Intent,
		PendingAction:    st.PendingAction,
		HasResearch:      st.Research != nil,
		TestStage:        st.Params.Stage().String(),
		HasGeneratedTest: st.Test != nil,
	}
	for _, m := range st.Messages {
		switch m.Role {
		case llms.ChatMessageTypeHuman:
			s.UserMessages++
		case llms.ChatMessageTypeAI:
			s.AIMessages++
		}
	}
	if st.Research != nil {
		s.LastResearch = st.Research.Topic
	}
	return s
}
