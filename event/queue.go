package event

import (
	"sync"

	"github.com/smallnest/researchchat/log"
)

// DefaultQueueSize is the buffer used when NewQueue gets a non-positive size.
const DefaultQueueSize = 100

// Queue is a bounded outbound event queue. Producers never block: when the
// buffer is full the oldest event is dropped. A transport drains Events.
type Queue struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped int
	logger  log.Logger
}

// NewQueue creates a queue holding up to size events.
func NewQueue(size int, logger log.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Queue{ch: make(chan Event, size), logger: logger}
}

// Notify implements Notifier. Events sent after Close are dropped.
func (q *Queue) Notify(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	select {
	case q.ch <- e:
		return
	default:
	}

	// Full: make room by discarding the oldest event.
	select {
	case old := <-q.ch:
		q.dropped++
		q.logger.Warn("event queue full, dropped %s event", old.Type)
	default:
	}
	select {
	case q.ch <- e:
	default:
		q.dropped++
	}
}

// Events returns the channel a consumer drains. It is closed by Close.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Dropped reports how many events were discarded because the queue was full.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting events and closes the channel. Buffered events can
// still be drained. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
