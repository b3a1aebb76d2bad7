package manager

import (
	"context"
	"sync"
)

// Fifo is an unbounded first-in first-out queue, safe for any number of
// concurrent producers and consumers. The job queue and the per-client
// mailboxes are both built on it; neither may ever drop or reorder work,
// and producers must never block.
type Fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	wake chan struct{}
	done chan struct{}
}

func NewFifo[T any]() *Fifo[T] {
	return &Fifo[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Push appends v. Pushes to a closed queue are dropped.
func (q *Fifo[T]) Push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes the oldest element, blocking until one arrives. It reports
// ok=false once the queue is closed and drained, or when ctx is canceled.
func (q *Fifo[T]) Pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// Hand the wakeup on so a second waiting reader is not
				// stranded when two pushes collapsed into one signal.
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			return v, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return zero, false
		}

		select {
		case <-ctx.Done():
			return zero, false
		case <-q.done:
		case <-q.wake:
		}
	}
}

// Len reports the number of queued elements.
func (q *Fifo[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting pushes and releases blocked readers once the queue
// drains. Closing twice is harmless.
func (q *Fifo[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}
