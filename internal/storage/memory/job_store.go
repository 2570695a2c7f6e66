package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// JobStore keeps jobs and their verdicts in memory for development, the CLI
// and tests. Verdicts are held per batch so a re-delivered batch replaces
// rather than duplicates.
type JobStore struct {
	mu       sync.RWMutex
	jobs     map[string]validation.Job
	verdicts map[string]map[int][]validation.Verdict
	now      func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:     make(map[string]validation.Job),
		verdicts: make(map[string]map[int][]validation.Verdict),
		now:      time.Now,
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job validation.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, validation.ErrJobExists)
	}
	if job.Status == "" {
		job.Status = validation.JobStatusPending
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status validation.JobStatus,
	errText string,
	counters validation.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now().UTC()
	if status == validation.JobStatusProcessing && job.StartedAt == nil {
		job.StartedAt = pointerTime(now)
	}
	if status.Terminal() {
		job.CompletedAt = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// PersistBatch stores one batch of verdicts and advances the job counters.
func (s *JobStore) PersistBatch(_ context.Context, jobID string, seq int, verdicts []validation.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
	}
	batches := s.verdicts[jobID]
	if batches == nil {
		batches = make(map[int][]validation.Verdict)
		s.verdicts[jobID] = batches
	}
	copied := make([]validation.Verdict, len(verdicts))
	for i, v := range verdicts {
		copied[i] = v.Clone()
	}
	batches[seq] = copied

	var counters validation.JobCounters
	for _, b := range batches {
		counters.Add(b)
	}
	job.Counters = counters
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (validation.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return validation.Job{}, fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
	}
	return job, nil
}

// ListVerdicts returns every verdict for a job in batch order.
func (s *JobStore) ListVerdicts(_ context.Context, jobID string) ([]validation.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, validation.ErrJobNotFound)
	}
	batches := s.verdicts[jobID]
	seqs := make([]int, 0, len(batches))
	for seq := range batches {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	var out []validation.Verdict
	for _, seq := range seqs {
		for _, v := range batches[seq] {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
