package scheduler

import (
	"sync"

	"github.com/cyberinferno/go-slp/connection"
)

// Queue hands newly accepted connections from the acceptor goroutine to the tick
// loop, which takes everything pending at the start of each pass.
type Queue struct {
	mu      sync.Mutex
	pending []*connection.Connection
	closed  bool
}

// NewQueue creates an empty, open queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues c for the next pass. It reports false once the queue has been
// closed, in which case the caller still owns c and must close it.
func (q *Queue) Push(c *connection.Connection) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, c)
	return true
}

// Drain removes and returns all pending connections in arrival order.
func (q *Queue) Drain() []*connection.Connection {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.pending
	q.pending = nil
	return pending
}

// Close rejects further pushes and returns whatever was still pending.
func (q *Queue) Close() []*connection.Connection {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	pending := q.pending
	q.pending = nil
	return pending
}

// Len returns the number of pending connections.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
