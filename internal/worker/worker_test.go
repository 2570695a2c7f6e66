package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/queue/memory"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, jobID string, _ validation.Kind, items []string) (validation.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobID)
	return validation.Summary{Total: len(items)}, r.err
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.jobs...)
}

func TestWorkerRunProcessesQueuedJobs(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	runner := &recordingRunner{err: errors.New("persist failed")}
	w := New(q, runner, zap.NewNop())

	require.True(t, q.TryEnqueue(validation.QueueItem{JobID: "job-1", Kind: validation.KindEmail}))
	require.True(t, q.TryEnqueue(validation.QueueItem{JobID: "job-2", Kind: validation.KindPhone}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(runner.seen()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"job-1", "job-2"}, runner.seen())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerStopsWhenQueueClosed(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	w := New(q, &recordingRunner{}, nil)
	q.Close()

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}
