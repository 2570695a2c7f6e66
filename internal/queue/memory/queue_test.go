package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan validation.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	job := validation.QueueItem{JobID: "job-1", Kind: validation.KindEmail, Items: []string{"a@example.com"}}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.JobID != "job-1" || len(got.Items) != 1 {
			t.Fatalf("expected job-1 with one item, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueTryEnqueueRespectsCapacity(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if !q.TryEnqueue(validation.QueueItem{JobID: "a"}) || !q.TryEnqueue(validation.QueueItem{JobID: "b"}) {
		t.Fatal("expected first two enqueues to fit")
	}
	if q.TryEnqueue(validation.QueueItem{JobID: "c"}) {
		t.Fatal("expected third enqueue to be rejected")
	}
	if q.Len() != 2 || q.Cap() != 2 {
		t.Fatalf("expected len=2 cap=2, got len=%d cap=%d", q.Len(), q.Cap())
	}

	got, err := q.Dequeue(context.Background())
	if err != nil || got.JobID != "a" {
		t.Fatalf("expected FIFO order, got %+v err=%v", got, err)
	}
	if !q.TryEnqueue(validation.QueueItem{JobID: "c"}) {
		t.Fatal("expected room after dequeue")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), validation.QueueItem{JobID: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, validation.QueueItem{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	if q.TryEnqueue(validation.QueueItem{JobID: "late"}) {
		t.Fatal("expected enqueue after close to fail")
	}
	// Closing twice should be safe.
	q.Close()
}
