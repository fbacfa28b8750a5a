package agent

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can pick a recovery policy.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMalformedOutput means the model answered with text of the wrong shape.
	KindMalformedOutput
	// KindUpstream means an LLM, tool or crew call failed.
	KindUpstream
	// KindPrecondition means required input, such as an indexed document, is missing.
	KindPrecondition
	// KindProtocol means a client sent a payload without the expected fields.
	KindProtocol
	// KindTimeout means a job did not finish within its deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindMalformedOutput:
		return "malformed_output"
	case KindUpstream:
		return "upstream"
	case KindPrecondition:
		return "precondition"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyResponse is returned when the model produced neither text nor tool calls.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrNoTasks is returned by Crew.Run when there is nothing to do.
	ErrNoTasks = errors.New("crew has no tasks")
	// ErrNoAgent is returned when a task has no agent assigned.
	ErrNoAgent = errors.New("task has no agent")
)

// Error is a classified failure of operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation name. A nil err stays nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
// Deadline errors without a classification count as KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
