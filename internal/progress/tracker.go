package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const defaultRetention = time.Hour

// TrackerConfig controls the in-memory progress registry.
type TrackerConfig struct {
	// Retention is how long a finished job stays readable (default 1h).
	Retention time.Duration
	Logger    *zap.Logger
}

type trackedJob struct {
	snap Snapshot
}

// Tracker is a process-local registry of live job progress. Entries are
// removed Retention after completion. It is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	jobs      map[string]*trackedJob
	timers    map[string]*time.Timer
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewTracker constructs an empty Tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		jobs:      make(map[string]*trackedJob),
		timers:    make(map[string]*time.Timer),
		retention: cfg.Retention,
		logger:    logger,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// Start registers a job in the processing state, replacing any stale entry.
func (t *Tracker) Start(jobID string, kind validation.Kind, total int) Snapshot {
	now := t.now()
	job := &trackedJob{snap: Snapshot{
		JobID:     jobID,
		Kind:      kind,
		Status:    validation.JobStatusProcessing,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}}

	t.mu.Lock()
	if timer, ok := t.timers[jobID]; ok {
		timer.Stop()
		delete(t.timers, jobID)
	}
	t.jobs[jobID] = job
	snap := job.snap
	t.mu.Unlock()

	t.logger.Info("tracking job", zap.String("job_id", jobID), zap.String("kind", string(kind)), zap.Int("total", total))
	return snap
}

// Update records cumulative counters and recomputes throughput and ETA.
// Processed never moves backwards.
func (t *Tracker) Update(jobID string, counters validation.JobCounters) (Snapshot, bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.logger.Warn("progress update for unknown job", zap.String("job_id", jobID))
		return Snapshot{}, false
	}
	if counters.Processed >= job.snap.Processed {
		job.snap.Processed = counters.Processed
		job.snap.Valid = counters.Valid
		job.snap.Invalid = counters.Invalid
	}
	job.snap.UpdatedAt = now
	recompute(&job.snap, now)
	t.logger.Debug("job progress",
		zap.String("job_id", jobID),
		zap.Int("processed", job.snap.Processed),
		zap.Int("total", job.snap.Total),
		zap.Float64("items_per_second", job.snap.Throughput),
	)
	return job.snap, true
}

// Complete marks the job terminal and schedules its removal.
func (t *Tracker) Complete(jobID string, status validation.JobStatus, errText string) (Snapshot, bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		t.logger.Warn("completion for unknown job", zap.String("job_id", jobID))
		return Snapshot{}, false
	}
	job.snap.Status = status
	job.snap.ErrorText = errText
	job.snap.UpdatedAt = now
	job.snap.CompletedAt = &now
	recompute(&job.snap, now)
	job.snap.ETA = 0
	job.snap.ETAKnown = job.snap.Remaining() == 0

	if timer, ok := t.timers[jobID]; ok {
		timer.Stop()
	}
	t.timers[jobID] = t.afterFunc(t.retention, func() { t.purge(jobID, job) })
	t.logger.Info("job tracking finished", zap.String("job_id", jobID), zap.String("status", string(status)))
	return job.snap, true
}

// Get returns the current snapshot for a job.
func (t *Tracker) Get(jobID string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return Snapshot{}, false
	}
	return job.snap, true
}

// Active returns the number of tracked jobs that are not terminal.
func (t *Tracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, job := range t.jobs {
		if !job.snap.Status.Terminal() {
			n++
		}
	}
	return n
}

// Len returns the number of tracked jobs, finished ones included.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

// Sweep removes finished jobs whose retention has elapsed and returns the
// number removed.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, job := range t.jobs {
		if job.snap.CompletedAt != nil && !job.snap.CompletedAt.After(cutoff) {
			delete(t.jobs, id)
			if timer, ok := t.timers[id]; ok {
				timer.Stop()
				delete(t.timers, id)
			}
			removed++
		}
	}
	return removed
}

// Close cancels pending purge timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// purge drops the entry only if it is still the one that completed; a job
// restarted under the same ID keeps its new entry.
func (t *Tracker) purge(jobID string, job *trackedJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.jobs[jobID]; ok && current == job {
		delete(t.jobs, jobID)
		delete(t.timers, jobID)
		t.logger.Debug("purged job progress", zap.String("job_id", jobID))
	}
}

func recompute(s *Snapshot, now time.Time) {
	s.Elapsed = now.Sub(s.StartedAt)
	s.Throughput = 0
	s.ETA = 0
	s.ETAKnown = false
	if s.Elapsed > 0 {
		s.Throughput = float64(s.Processed) / s.Elapsed.Seconds()
	}
	if s.Throughput > 0 {
		s.ETA = time.Duration(float64(s.Remaining()) / s.Throughput * float64(time.Second))
		s.ETAKnown = true
	}
}
