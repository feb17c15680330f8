// Package queue buffers user actions for the dashboard's dispatch loop.
//
// Producers (the terminal reader, signal handlers) never block: a full or
// closed queue rejects the action and the caller reports it.
package queue

import (
	"context"
	"sync"

	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 64
)

// Action is the payload flowing through the queue.
type Action = model.Action

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an action to the queue.
	// Returns ErrQueueFull, ErrQueueClosed or the context error on rejection.
	Enqueue(ctx context.Context, a Action) error

	// Dequeue returns a channel that will receive actions as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Action

	// Len returns the current number of queued actions.
	Len() int

	// Close stops accepting actions. Already queued actions are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	actions  chan Action
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.actions = make(chan Action, q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds an action to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, a Action) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}

	select {
	case q.actions <- a:
		metrics.UpdateQueueSize(len(q.actions))
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrQueueFull
	}
}

// Dequeue returns a channel that will receive actions as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Action {
	out := make(chan Action)
	go func() {
		defer close(out)
		for a := range q.actions {
			select {
			case out <- a:
				metrics.UpdateQueueSize(len(q.actions))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued actions.
func (q *InMemoryQueue) Len() int {
	size := len(q.actions)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting actions.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	// consumers drain what is buffered, then see the channel close
	close(q.actions)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
