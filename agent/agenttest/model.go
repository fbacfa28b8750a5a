// Package agenttest provides a scripted llms.Model for tests.
package agenttest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrExhausted is returned when a scripted model runs out of responses.
var ErrExhausted = errors.New("agenttest: no more scripted responses")

// Handler computes a reply from the concatenated text of the request.
type Handler func(ctx context.Context, prompt string) (*llms.ContentChoice, error)

// Model is a goroutine-safe fake model. It answers from Handler when set,
// otherwise from the scripted Responses in order.
type Model struct {
	mu        sync.Mutex
	handler   Handler
	responses []llms.ContentChoice
	next      int
	requests  [][]llms.MessageContent
	options   []llms.CallOptions
}

var _ llms.Model = (*Model)(nil)

// NewText returns a model answering with the given texts in order.
func NewText(responses ...string) *Model {
	choices := make([]llms.ContentChoice, len(responses))
	for i, r := range responses {
		choices[i] = llms.ContentChoice{Content: r}
	}
	return &Model{responses: choices}
}

// NewChoices returns a model answering with the given choices in order.
func NewChoices(choices ...llms.ContentChoice) *Model {
	return &Model{responses: choices}
}

// NewFunc returns a model answering through fn.
func NewFunc(fn func(ctx context.Context, prompt string) (string, error)) *Model {
	return &Model{handler: func(ctx context.Context, prompt string) (*llms.ContentChoice, error) {
		out, err := fn(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return &llms.ContentChoice{Content: out}, nil
	}}
}

// GenerateContent implements llms.Model.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	m.requests = append(m.requests, append([]llms.MessageContent(nil), messages...))
	m.options = append(m.options, opts)
	handler := m.handler
	var choice *llms.ContentChoice
	if handler == nil {
		if m.next >= len(m.responses) {
			m.mu.Unlock()
			return nil, ErrExhausted
		}
		c := m.responses[m.next]
		m.next++
		choice = &c
	}
	m.mu.Unlock()

	if handler != nil {
		var err error
		choice, err = handler(ctx, Text(messages))
		if err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

// Call implements llms.Model.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the number of GenerateContent calls.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns every message list the model received.
func (m *Model) Requests() [][]llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llms.MessageContent(nil), m.requests...)
}

// Prompts returns the concatenated text of every request.
func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	for i, r := range m.requests {
		out[i] = Text(r)
	}
	return out
}

// Options returns the call options of every request.
func (m *Model) Options() []llms.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llms.CallOptions(nil), m.options...)
}

// Text joins the text parts of messages with newlines.
func Text(messages []llms.MessageContent) string {
	var parts []string
	for _, msg := range messages {
		for _, p := range msg.Parts {
			switch v := p.(type) {
			case llms.TextContent:
				parts = append(parts, v.Text)
			case llms.ToolCallResponse:
				parts = append(parts, v.Content)
			}
		}
	}
	return strings.Join(parts, "\n")
}
