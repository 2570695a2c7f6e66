package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolRunsTasksConcurrently(t *testing.T) {
	t.Parallel()

	p := NewPool(4, zap.NewNop())
	t.Cleanup(p.Close)

	var (
		wg      sync.WaitGroup
		running atomic.Int32
		peak    atomic.Int32
	)
	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}, nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return p.Busy() == 4 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	require.Equal(t, int32(4), peak.Load())
	require.Equal(t, 4, p.Size())
}

func TestPoolSubmitBlocksWhenSaturated(t *testing.T) {
	t.Parallel()

	p := NewPool(1, zap.NewNop())
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-release }, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	p.Close()
}

func TestPoolRecoversPanics(t *testing.T) {
	t.Parallel()

	p := NewPool(1, zap.NewNop())
	t.Cleanup(p.Close)

	recovered := make(chan any, 1)
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		panic("kaboom")
	}, func(rec any) { recovered <- rec }))

	select {
	case rec := <-recovered:
		require.Equal(t, "kaboom", rec)
	case <-time.After(time.Second):
		t.Fatal("panic handler not invoked")
	}

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(done) }, nil))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not survive panic")
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	t.Parallel()

	p := NewPool(2, nil)
	p.Close()
	err := p.Submit(context.Background(), func(context.Context) {}, nil)
	require.True(t, errors.Is(err, ErrPoolClosed))
	// Closing twice should be safe.
	p.Close()
}
