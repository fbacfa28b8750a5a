package graph

import (
	"context"
	"sync"
	"time"
)

// NodeEvent represents the lifecycle point of a node execution.
type NodeEvent string

const (
	// NodeEventStart fires before the node function runs.
	NodeEventStart NodeEvent = "start"
	// NodeEventComplete fires after a successful run.
	NodeEventComplete NodeEvent = "complete"
	// NodeEventError fires when the node fails after retries.
	NodeEventError NodeEvent = "error"
)

// NodeListener observes node executions of a StateGraph[S].
type NodeListener[S any] interface {
	OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state S, err error)
}

// NodeListenerFunc is a function adapter for NodeListener
type NodeListenerFunc[S any] func(ctx context.Context, event NodeEvent, nodeName string, state S, err error)

// OnNodeEvent implements the NodeListener interface
func (f NodeListenerFunc[S]) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state S, err error) {
	f(ctx, event, nodeName, state, err)
}

// TimingListener records how long each node took.
type TimingListener[S any] struct {
	Observe func(nodeName string, d time.Duration, err error)

	mu      sync.Mutex
	started map[string]time.Time
}

// NewTimingListener creates a TimingListener reporting to observe.
func NewTimingListener[S any](observe func(nodeName string, d time.Duration, err error)) *TimingListener[S] {
	return &TimingListener[S]{Observe: observe, started: make(map[string]time.Time)}
}

// OnNodeEvent implements NodeListener.
func (l *TimingListener[S]) OnNodeEvent(_ context.Context, event NodeEvent, nodeName string, _ S, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch event {
	case NodeEventStart:
		l.started[nodeName] = time.Now()
	case NodeEventComplete, NodeEventError:
		start, ok := l.started[nodeName]
		if !ok {
			return
		}
		delete(l.started, nodeName)
		if l.Observe != nil {
			l.Observe(nodeName, time.Since(start), err)
		}
	}
}
