package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type firedTimers struct {
	mu  sync.Mutex
	fns []func()
}

func (f *firedTimers) afterFunc(_ time.Duration, fn func()) *time.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns = append(f.fns, fn)
	return time.NewTimer(time.Hour)
}

func (f *firedTimers) fireAll() {
	f.mu.Lock()
	fns := append([]func(){}, f.fns...)
	f.fns = nil
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newTestTracker() (*Tracker, *manualClock, *firedTimers) {
	clk := &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	timers := &firedTimers{}
	tr := NewTracker(TrackerConfig{Retention: time.Hour, Logger: zap.NewNop()})
	tr.now = clk.Now
	tr.afterFunc = timers.afterFunc
	return tr, clk, timers
}

func TestTrackerThroughputAndETA(t *testing.T) {
	t.Parallel()
	tr, clk, _ := newTestTracker()

	snap := tr.Start("job-1", validation.KindEmail, 100)
	require.Equal(t, validation.JobStatusProcessing, snap.Status)
	require.False(t, snap.ETAKnown)

	clk.Advance(10 * time.Second)
	snap, ok := tr.Update("job-1", validation.JobCounters{Processed: 50, Valid: 40, Invalid: 10})
	require.True(t, ok)
	require.InDelta(t, 5.0, snap.Throughput, 1e-9)
	require.True(t, snap.ETAKnown)
	require.Equal(t, 10*time.Second, snap.ETA)
	require.InDelta(t, 50.0, snap.Percent(), 1e-9)
	require.Equal(t, "10s", snap.ETAString())
}

func TestTrackerZeroThroughputIsIndeterminate(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker()

	tr.Start("job-1", validation.KindPhone, 10)
	snap, ok := tr.Update("job-1", validation.JobCounters{})
	require.True(t, ok)
	require.Zero(t, snap.Throughput)
	require.False(t, snap.ETAKnown)
	require.Equal(t, "calculating...", snap.ETAString())
}

func TestTrackerProcessedIsMonotonic(t *testing.T) {
	t.Parallel()
	tr, clk, _ := newTestTracker()

	tr.Start("job-1", validation.KindEmail, 10)
	clk.Advance(time.Second)
	tr.Update("job-1", validation.JobCounters{Processed: 6, Valid: 6})
	snap, _ := tr.Update("job-1", validation.JobCounters{Processed: 4, Valid: 4})
	require.Equal(t, 6, snap.Processed)
	require.Equal(t, 6, snap.Valid)
}

func TestTrackerCompleteAndPurge(t *testing.T) {
	t.Parallel()
	tr, clk, timers := newTestTracker()

	tr.Start("job-1", validation.KindEmail, 2)
	clk.Advance(time.Second)
	tr.Update("job-1", validation.JobCounters{Processed: 2, Valid: 1, Invalid: 1})
	snap, ok := tr.Complete("job-1", validation.JobStatusCompleted, "")
	require.True(t, ok)
	require.Equal(t, validation.JobStatusCompleted, snap.Status)
	require.NotNil(t, snap.CompletedAt)
	require.Equal(t, 0, tr.Active())
	require.Equal(t, 1, tr.Len())

	_, ok = tr.Get("job-1")
	require.True(t, ok)

	timers.fireAll()
	_, ok = tr.Get("job-1")
	require.False(t, ok)
}

func TestTrackerPurgeSkipsRestartedJob(t *testing.T) {
	t.Parallel()
	tr, _, timers := newTestTracker()

	tr.Start("job-1", validation.KindEmail, 1)
	tr.Complete("job-1", validation.JobStatusFailed, "boom")
	tr.Start("job-1", validation.KindEmail, 3)

	timers.fireAll()
	snap, ok := tr.Get("job-1")
	require.True(t, ok)
	require.Equal(t, 3, snap.Total)
	require.Equal(t, validation.JobStatusProcessing, snap.Status)
}

func TestTrackerSweepRemovesExpired(t *testing.T) {
	t.Parallel()
	tr, clk, _ := newTestTracker()

	tr.Start("old", validation.KindEmail, 1)
	tr.Complete("old", validation.JobStatusCompleted, "")
	clk.Advance(30 * time.Minute)
	tr.Start("live", validation.KindEmail, 1)
	tr.Start("recent", validation.KindEmail, 1)
	tr.Complete("recent", validation.JobStatusCompleted, "")

	clk.Advance(31 * time.Minute)
	require.Equal(t, 1, tr.Sweep())
	_, ok := tr.Get("old")
	require.False(t, ok)
	require.Equal(t, 2, tr.Len())
	require.Equal(t, 1, tr.Active())
}

func TestTrackerUnknownJob(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTestTracker()

	_, ok := tr.Update("missing", validation.JobCounters{Processed: 1})
	require.False(t, ok)
	_, ok = tr.Complete("missing", validation.JobStatusCompleted, "")
	require.False(t, ok)
	_, ok = tr.Get("missing")
	require.False(t, ok)
}

func TestTrackerConcurrentReadsDuringPurge(t *testing.T) {
	t.Parallel()
	tr, _, timers := newTestTracker()
	tr.Start("job-1", validation.KindEmail, 1)
	tr.Complete("job-1", validation.JobStatusCompleted, "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Get("job-1")
			}
		}()
	}
	timers.fireAll()
	wg.Wait()
	_, ok := tr.Get("job-1")
	require.False(t, ok)
}
