// Package event carries progress and UI notifications from the core to
// whatever transport is attached to a session.
package event

import (
	"sync"
	"time"
)

// Type names an event kind on the wire.
type Type string

const (
	WorkflowMessage        Type = "workflow_message"
	CrewProgress           Type = "crew_progress"
	AgentMessage           Type = "a2a_message"
	SubtopicsFound         Type = "subtopics_found"
	SubtopicProgress       Type = "subtopic_progress"
	TestParametersRequest  Type = "test_parameters_request"
	TestParametersComplete Type = "test_parameters_complete"
	TestGenerated          Type = "test_generated"
	ConfirmationRequest    Type = "confirmation_request"
	Error                  Type = "error"
)

// Event is one notification. Data is free-form and must be JSON encodable.
type Event struct {
	Type      Type           `json:"type"`
	AgentName string         `json:"agent_name,omitempty"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event stamped with the current time.
func New(typ Type, agentName, message string, data map[string]any) Event {
	return Event{
		Type:      typ,
		AgentName: agentName,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Notifier receives events. Notify must not block the caller for long.
type Notifier interface {
	Notify(e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(e Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e Event) { f(e) }

type discard struct{}

func (discard) Notify(Event) {}

// Discard drops every event.
var Discard Notifier = discard{}

// Multi fans an event out to several notifiers in order.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(e Event) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(e)
			}
		}
	})
}

// Recorder keeps every event in memory. Mostly used by tests and the CLI.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Notifier.
func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
