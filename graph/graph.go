package graph

import (
	"errors"
	"fmt"
	"time"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

// DefaultMaxSteps bounds the number of node executions a single invocation may run.
const DefaultMaxSteps = 25

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrMultipleEdges is returned when a node has more than one outgoing edge.
	ErrMultipleEdges = errors.New("node has more than one outgoing edge")

	// ErrStepLimit is returned when an invocation exceeds its step budget.
	ErrStepLimit = errors.New("graph step limit exceeded")
)

// Edge represents an edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// RetryPolicy defines how a node is re-run after a failure.
type RetryPolicy struct {
	MaxRetries      int
	BackoffStrategy BackoffStrategy
	// BaseDelay defaults to one second.
	BaseDelay time.Duration
	// RetryableErrors are substrings matched against the error text.
	RetryableErrors []string
	// Retryable, when set, takes precedence over RetryableErrors.
	Retryable func(error) bool
}

// BackoffStrategy defines different backoff strategies
type BackoffStrategy int

const (
	FixedBackoff BackoffStrategy = iota
	ExponentialBackoff
	LinearBackoff
	NoBackoff
)

// Config carries per-invocation options.
type Config struct {
	// MaxSteps overrides DefaultMaxSteps when positive.
	MaxSteps int
}

// NodeError wraps a failure raised inside a node.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("error in node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
