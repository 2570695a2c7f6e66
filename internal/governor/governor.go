// Package governor bounds how many whole validation jobs run at once across
// the process.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/Moxx-Company/validator-pro/internal/metrics"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("governor closed")

// Governor is a counting semaphore over job slots.
type Governor struct {
	capacity int64
	sem      *semaphore.Weighted
	inUse    atomic.Int64
	waiting  atomic.Int64
	closed   chan struct{}
	once     sync.Once
}

// New returns a governor with capacity slots.
func New(capacity int) *Governor {
	if capacity < 1 {
		capacity = 1
	}
	g := &Governor{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		closed:   make(chan struct{}),
	}
	g.publish()
	return g
}

// Acquire blocks until a slot is free. The returned release func is safe to
// call more than once; only the first call frees the slot.
func (g *Governor) Acquire(ctx context.Context) (func(), error) {
	select {
	case <-g.closed:
		return nil, ErrClosed
	default:
	}

	g.waiting.Add(1)
	waitCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-g.closed:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	err := g.sem.Acquire(waitCtx, 1)
	cancel()
	g.waiting.Add(-1)
	if err != nil {
		select {
		case <-g.closed:
			return nil, ErrClosed
		default:
		}
		return nil, fmt.Errorf("acquire job slot: %w", err)
	}

	return g.held(), nil
}

// TryAcquire takes a slot only if one is free right now.
func (g *Governor) TryAcquire() (func(), bool) {
	select {
	case <-g.closed:
		return nil, false
	default:
	}
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return g.held(), true
}

func (g *Governor) held() func() {
	g.inUse.Add(1)
	g.publish()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inUse.Add(-1)
			g.sem.Release(1)
			g.publish()
		})
	}
}

// Capacity returns the total slot count.
func (g *Governor) Capacity() int {
	return int(g.capacity)
}

// InUse returns the number of held slots.
func (g *Governor) InUse() int {
	return int(g.inUse.Load())
}

// QueueDepth returns capacity minus in-use, i.e. the free slots.
func (g *Governor) QueueDepth() int {
	return int(g.capacity - g.inUse.Load())
}

// Waiting returns how many callers are blocked in Acquire.
func (g *Governor) Waiting() int {
	return int(g.waiting.Load())
}

// Close wakes blocked callers with ErrClosed. Held slots stay valid until
// released.
func (g *Governor) Close() {
	g.once.Do(func() { close(g.closed) })
}

func (g *Governor) publish() {
	inUse := g.inUse.Load()
	metrics.SetGovernor(int(inUse), int(g.capacity-inUse))
}
