package agent

import (
	"errors"
	"sync"

	"github.com/sgunadhya/incident-agent/pkg/fact"
)

// ErrQueueClosed is returned by Push once the queue has been closed; callers
// map this to a 503 at the HTTP boundary rather than accepting facts the
// agent loop will never see.
var ErrQueueClosed = errors.New("fact queue is closed")

// FactQueue is an unbounded, multi-producer single-consumer queue of facts.
// The BDI loop never blocks a webhook handler on slow downstream processing:
// Push always succeeds immediately, and Pop blocks only until a fact is
// available or the queue is closed.
type FactQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []fact.Fact
	closed bool
}

// NewFactQueue builds an empty, open queue.
func NewFactQueue() *FactQueue {
	q := &FactQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a fact to the tail of the queue. Safe for concurrent callers.
// Returns ErrQueueClosed once Close has been called.
func (q *FactQueue) Push(f fact.Fact) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, f)
	q.cond.Signal()
	return nil
}

// Pop removes and returns the head of the queue, blocking until an item is
// available. ok is false once the queue has been closed and drained.
func (q *FactQueue) Pop() (f fact.Fact, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return fact.Fact{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Close marks the queue closed, waking any blocked Pop so it can drain the
// remaining backlog and return.
func (q *FactQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
