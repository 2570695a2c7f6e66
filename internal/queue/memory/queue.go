// Package memory provides the bounded in-process admission queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Moxx-Company/validator-pro/internal/metrics"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = validation.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan validation.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan validation.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, job validation.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		metrics.SetAdmissionQueueDepth(len(q.ch))
		return nil
	}
}

// TryEnqueue pushes a job only if there is room right now.
func (q *Queue) TryEnqueue(job validation.QueueItem) bool {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- job:
		metrics.SetAdmissionQueueDepth(len(q.ch))
		return true
	default:
		return false
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (validation.QueueItem, error) {
	select {
	case <-ctx.Done():
		return validation.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return validation.QueueItem{}, ErrClosed
		}
		metrics.SetAdmissionQueueDepth(len(q.ch))
		return job, nil
	}
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close closes the underlying channel for shutdown. Queued jobs can still be
// drained.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
