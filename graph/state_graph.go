package graph

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// StateGraph represents a generic state-based graph with compile-time type safety.
// The type parameter S represents the state type, which is typically a struct
// or a pointer to one.
//
// Example usage:
//
//	type TurnState struct {
//	    Intent string
//	    Reply  string
//	}
//
//	g := graph.NewStateGraph[TurnState]()
//	g.AddNode("classify", "Pick a branch", func(ctx context.Context, s TurnState) (TurnState, error) {
//	    s.Intent = "chat"
//	    return s, nil
//	})
type StateGraph[S any] struct {
	nodes map[string]TypedNode[S]

	edges []Edge

	// conditionalEdges maps a "From" node to a router deciding the "To" node.
	conditionalEdges map[string]func(ctx context.Context, state S) string

	entryPoint string

	listeners []NodeListener[S]
}

// TypedNode represents a typed node in the graph.
type TypedNode[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
	// Timeout bounds a single attempt of the node when positive.
	Timeout time.Duration
	// RetryPolicy re-runs the node after a retryable failure when set.
	RetryPolicy *RetryPolicy
}

// NewStateGraph creates a new instance of StateGraph with type safety.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]TypedNode[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddNodeWithTimeout adds a node whose every attempt is bounded by timeout.
func (g *StateGraph[S]) AddNodeWithTimeout(name, description string, timeout time.Duration, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
		Timeout:     timeout,
	}
}

// AddNodeWithRetry adds a node that is re-run according to policy when it
// fails.
func (g *StateGraph[S]) AddNodeWithRetry(name, description string, policy *RetryPolicy, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
		RetryPolicy: policy,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
//
//	g.AddConditionalEdge("classify", func(ctx context.Context, s TurnState) string {
//	    if s.Intent == "research" {
//	        return "research"
//	    }
//	    return "respond"
//	})
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// AddListener registers a listener notified around every node execution.
func (g *StateGraph[S]) AddListener(l NodeListener[S]) {
	g.listeners = append(g.listeners, l)
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
type StateRunnable[S any] struct {
	graph *StateGraph[S]
}

// Compile validates the graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, g.entryPoint)
	}
	out := make(map[string]int)
	for _, e := range g.edges {
		out[e.From]++
		if out[e.From] > 1 {
			return nil, fmt.Errorf("%w: %s", ErrMultipleEdges, e.From)
		}
		if _, ok := g.conditionalEdges[e.From]; ok {
			return nil, fmt.Errorf("%w: %s", ErrMultipleEdges, e.From)
		}
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge from %s", ErrNodeNotFound, e.From)
		}
		if e.To != END {
			if _, ok := g.nodes[e.To]; !ok {
				return nil, fmt.Errorf("%w: edge to %s", ErrNodeNotFound, e.To)
			}
		}
	}
	for from := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge from %s", ErrNodeNotFound, from)
		}
	}

	return &StateRunnable[S]{graph: g}, nil
}

// Nodes returns the registered node names in sorted order.
func (r *StateRunnable[S]) Nodes() []string {
	names := make([]string, 0, len(r.graph.nodes))
	for name := range r.graph.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke executes the compiled state graph with the given input state.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled state graph with the given input state and config.
// Nodes run one at a time, each receiving the state returned by the previous one.
func (r *StateRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	state := initialState
	current := r.graph.entryPoint

	maxSteps := DefaultMaxSteps
	if config != nil && config.MaxSteps > 0 {
		maxSteps = config.MaxSteps
	}

	for step := 0; current != END; step++ {
		if step >= maxSteps {
			return state, fmt.Errorf("%w: %d", ErrStepLimit, maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		next, err := r.runNode(ctx, current, state)
		if err != nil {
			return state, err
		}
		state = next

		current, err = r.nextNode(ctx, current, state)
		if err != nil {
			return state, err
		}
	}

	return state, nil
}

func (r *StateRunnable[S]) runNode(ctx context.Context, name string, state S) (res S, err error) {
	node, ok := r.graph.nodes[name]
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}

	r.notify(ctx, NodeEventStart, name, state, nil)

	defer func() {
		if p := recover(); p != nil {
			err = &NodeError{Node: name, Err: fmt.Errorf("panic: %v", p)}
			r.notify(ctx, NodeEventError, name, state, err)
		}
	}()

	res, err = r.executeNodeWithRetry(ctx, node, state)
	if err != nil {
		err = &NodeError{Node: name, Err: err}
		r.notify(ctx, NodeEventError, name, state, err)
		return res, err
	}

	r.notify(ctx, NodeEventComplete, name, res, nil)
	return res, nil
}

func (r *StateRunnable[S]) notify(ctx context.Context, event NodeEvent, name string, state S, err error) {
	for _, l := range r.graph.listeners {
		l.OnNodeEvent(ctx, event, name, state, err)
	}
}

// nextNode resolves the conditional edge of nodeName first, then its static edge.
func (r *StateRunnable[S]) nextNode(ctx context.Context, nodeName string, state S) (string, error) {
	if route, ok := r.graph.conditionalEdges[nodeName]; ok {
		target := route(ctx, state)
		if target == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", nodeName)
		}
		if target != END {
			if _, exists := r.graph.nodes[target]; !exists {
				return "", fmt.Errorf("%w: %s (routed from %s)", ErrNodeNotFound, target, nodeName)
			}
		}
		return target, nil
	}

	for _, edge := range r.graph.edges {
		if edge.From == nodeName {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, nodeName)
}
