package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is one unit of blocking work. It must honor ctx.
type Task func(ctx context.Context)

// PanicHandler receives the value recovered from a panicking task.
type PanicHandler func(recovered any)

// Pool is a fixed-size set of goroutines reused across batches and jobs.
type Pool struct {
	size   int
	tasks  chan poolTask
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	busy   atomic.Int64
	logger *zap.Logger
}

type poolTask struct {
	ctx     context.Context
	run     Task
	onPanic PanicHandler
}

// NewPool starts size goroutines.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		size:   size,
		tasks:  make(chan poolTask),
		quit:   make(chan struct{}),
		logger: logger,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.loop()
	}
	return p
}

// Submit hands task to an idle goroutine, blocking until one is free, ctx
// ends or the pool closes. onPanic may be nil.
func (p *Pool) Submit(ctx context.Context, task Task, onPanic PanicHandler) error {
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("submit task: %w", ctx.Err())
	case <-p.quit:
		return ErrPoolClosed
	case p.tasks <- poolTask{ctx: ctx, run: task, onPanic: onPanic}:
		return nil
	}
}

// Size returns the number of goroutines.
func (p *Pool) Size() int {
	return p.size
}

// Busy returns how many goroutines are running a task.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Close stops accepting work and waits for running tasks to return.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case t := <-p.tasks:
			p.execute(t)
		}
	}
}

func (p *Pool) execute(t poolTask) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("worker task panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			if t.onPanic != nil {
				t.onPanic(rec)
			}
		}
	}()
	t.run(t.ctx)
}
