// Package dispatcher manages job runner fan-out over the admission queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Moxx-Company/validator-pro/internal/validation"
	"github.com/Moxx-Company/validator-pro/internal/worker"
)

// ErrQueueFull is returned when the admission queue has no room.
var ErrQueueFull = errors.New("admission queue full")

// Dispatcher fans out queue work to a pool of job runners.
type Dispatcher struct {
	queue   validation.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue validation.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// AddWorker registers a runner. It must be called before Run.
func (d *Dispatcher) AddWorker(w *worker.Worker) {
	d.workers = append(d.workers, w)
}

// Workers reports how many runners are registered.
func (d *Dispatcher) Workers() int {
	return len(d.workers)
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue admits a job without blocking; a full queue is reported as
// ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, item validation.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	if !d.queue.TryEnqueue(item) {
		return fmt.Errorf("queue enqueue: %w", ErrQueueFull)
	}
	return nil
}

// Pending reports how many admitted jobs are waiting for a runner.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}
