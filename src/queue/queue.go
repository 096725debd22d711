// Package queue provides the FIFO channel pair used between the UI thread, the
// reactor and the worker pool. Unlike a Go channel it can be closed by either
// side, and a closed queue still hands out what was already enqueued.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrFull is returned by TrySend on a bounded queue at capacity.
	ErrFull = errors.New("queue full")
	// ErrClosed is returned once the queue is closed (and, for Recv, drained).
	ErrClosed = errors.New("queue closed")
)

// Queue is a FIFO of T. Capacity 0 means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool

	// notEmpty/notFull are replaced (closed) on every state change so waiters
	// can select on them together with a context.
	notEmpty chan struct{}
	notFull  chan struct{}
}

// New creates a queue. capacity <= 0 means unbounded.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
	}
}

// Cap returns the configured capacity, 0 for unbounded.
func (q *Queue[T]) Cap() int { return q.capacity }

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// TrySend enqueues v without blocking.
func (q *Queue[T]) TrySend(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrFull
	}
	q.push(v)
	return nil
}

// Send enqueues v, waiting for room on a full bounded queue.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.push(v)
			q.mu.Unlock()
			return nil
		}
		wait := q.notFull
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Recv dequeues the oldest item, waiting while the queue is empty. After Close
// the remaining items are still returned in order, then ErrClosed.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.signal(&q.notFull)
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close marks the queue closed. Safe to call more than once from either side.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signal(&q.notEmpty)
	q.signal(&q.notFull)
}

// Drain removes and returns everything currently queued.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	q.signal(&q.notFull)
	return out
}

// push must be called with mu held.
func (q *Queue[T]) push(v T) {
	q.items = append(q.items, v)
	q.signal(&q.notEmpty)
}

// signal wakes all waiters on ch and arms a fresh channel. mu must be held.
func (q *Queue[T]) signal(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}
