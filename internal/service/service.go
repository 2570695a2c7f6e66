// Package service owns the job lifecycle: admission, governor slot, batch
// execution, terminal status, and the caller-facing progress stream.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/batch"
	"github.com/Moxx-Company/validator-pro/internal/metrics"
	"github.com/Moxx-Company/validator-pro/internal/progress"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const updateBuffer = 16

// Governor bounds how many jobs execute at once.
type Governor interface {
	Acquire(ctx context.Context) (func(), error)
	Capacity() int
	InUse() int
	QueueDepth() int
}

// Admitter accepts jobs for asynchronous execution.
type Admitter interface {
	Enqueue(ctx context.Context, item validation.QueueItem) error
	Pending() int
}

// Sizer reports an entry count.
type Sizer interface {
	Len() int
}

// KindConfig holds the batching knobs for one item kind.
type KindConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// Config controls the service.
type Config struct {
	Email KindConfig
	Phone KindConfig
	// BatchPause is slept between batches of one job.
	BatchPause time.Duration
}

// Deps are the collaborators wired in by the server. Archive, Cache, Hub and
// Admitter are optional.
type Deps struct {
	Governor Governor
	Store    validation.JobStore
	Archive  validation.BatchPersister
	Factory  ValidatorFactory
	Pools    map[validation.Kind]batch.Pool
	Cache    batch.Cache
	Tracker  *progress.Tracker
	Hub      progress.Emitter
	Admitter Admitter
	IDs      validation.IDGenerator
	Clock    validation.Clock
	Logger   *zap.Logger
}

// Update is one element of a Submit stream. The last update has Final set
// and carries either Summary or Err.
type Update struct {
	Snapshot progress.Snapshot   `json:"snapshot"`
	Final    bool                `json:"final"`
	Summary  *validation.Summary `json:"summary,omitempty"`
	Err      error               `json:"-"`
}

// Stats is the operational view exposed by the API.
type Stats struct {
	GovernorCapacity int `json:"governor_capacity"`
	GovernorInUse    int `json:"governor_in_use"`
	GovernorFree     int `json:"governor_free"`
	QueuedJobs       int `json:"queued_jobs"`
	CacheEntries     int `json:"cache_entries"`
	ActiveJobs       int `json:"active_jobs"`
}

// Service runs validation jobs.
type Service struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates the wiring and returns a Service.
func New(cfg Config, deps Deps) (*Service, error) {
	switch {
	case deps.Governor == nil:
		return nil, errors.New("service requires a governor")
	case deps.Store == nil:
		return nil, errors.New("service requires a job store")
	case deps.Factory == nil:
		return nil, errors.New("service requires a validator factory")
	case len(deps.Pools) == 0:
		return nil, errors.New("service requires worker pools")
	case deps.Clock == nil:
		return nil, errors.New("service requires a clock")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Tracker == nil {
		deps.Tracker = progress.NewTracker(progress.TrackerConfig{Logger: logger})
	}
	return &Service{cfg: cfg, deps: deps, log: logger.Named("service")}, nil
}

// Admit registers a pending job and queues it for a runner. It returns the
// new job ID.
func (s *Service) Admit(ctx context.Context, kind validation.Kind, items []string) (string, error) {
	if s.deps.Admitter == nil {
		return "", errors.New("service has no admission queue")
	}
	if s.deps.IDs == nil {
		return "", errors.New("service has no id generator")
	}
	if len(items) == 0 {
		return "", errors.New("no items to validate")
	}
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	if err := s.createJob(ctx, jobID, kind, len(items)); err != nil {
		return "", err
	}
	item := validation.QueueItem{JobID: jobID, Kind: kind, Items: items, EnqueuedAt: s.deps.Clock.Now().UTC()}
	if err := s.deps.Admitter.Enqueue(ctx, item); err != nil {
		s.markFailed(ctx, jobID, err.Error(), validation.JobCounters{})
		return jobID, fmt.Errorf("admit job: %w", err)
	}
	s.log.Info("job admitted", zap.String("job_id", jobID), zap.String("kind", string(kind)), zap.Int("items", len(items)))
	return jobID, nil
}

// Submit starts the job in the background and returns its progress stream.
// Intermediate updates are dropped when the reader falls behind; the final
// update is always delivered and the channel is then closed.
func (s *Service) Submit(ctx context.Context, jobID string, kind validation.Kind, items []string) (<-chan Update, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	if _, err := s.validatorFor(kind); err != nil {
		return nil, err
	}
	updates := make(chan Update, updateBuffer)
	go func() {
		defer close(updates)
		report := func(snap progress.Snapshot) {
			select {
			case updates <- Update{Snapshot: snap}:
			default:
			}
		}
		summary, err := s.run(ctx, jobID, kind, items, report)
		final := Update{Final: true, Err: err}
		if snap, ok := s.deps.Tracker.Get(jobID); ok {
			final.Snapshot = snap
		}
		if err == nil {
			final.Summary = &summary
		}
		deliverFinal(updates, final)
	}()
	return updates, nil
}

// deliverFinal makes room by discarding the oldest buffered update so the
// terminal update never blocks on a reader that went away.
func deliverFinal(ch chan Update, final Update) {
	for {
		select {
		case ch <- final:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Run executes the job synchronously and returns its summary. Only
// orchestration failures (governor, store, persistence) return an error; the
// governor slot is released on every path.
func (s *Service) Run(ctx context.Context, jobID string, kind validation.Kind, items []string) (validation.Summary, error) {
	return s.run(ctx, jobID, kind, items, nil)
}

func (s *Service) run(ctx context.Context, jobID string, kind validation.Kind, items []string, report batch.ReportFunc) (validation.Summary, error) {
	log := s.log.With(zap.String("job_id", jobID), zap.String("kind", string(kind)))
	if err := s.createJob(ctx, jobID, kind, len(items)); err != nil && !errors.Is(err, validation.ErrJobExists) {
		return validation.Summary{}, err
	}

	exec, err := s.executor(kind)
	if err != nil {
		s.markFailed(ctx, jobID, err.Error(), validation.JobCounters{})
		return validation.Summary{}, err
	}

	release, err := s.deps.Governor.Acquire(ctx)
	if err != nil {
		s.markFailed(ctx, jobID, err.Error(), validation.JobCounters{})
		return validation.Summary{}, fmt.Errorf("job %s: %w", jobID, err)
	}
	defer release()

	started := s.deps.Clock.Now()
	if err := s.deps.Store.UpdateJobStatus(ctx, jobID, validation.JobStatusProcessing, "", validation.JobCounters{}); err != nil {
		s.markFailed(ctx, jobID, err.Error(), validation.JobCounters{})
		return validation.Summary{}, fmt.Errorf("mark job processing: %w", err)
	}
	s.emit(progress.Event{JobID: jobID, TS: started.UTC(), Stage: progress.StageJobStart, Kind: kind})
	log.Info("job started", zap.Int("items", len(items)))

	res, runErr := exec.Run(ctx, jobID, items, report)
	elapsed := s.deps.Clock.Now().Sub(started)
	if runErr != nil {
		s.markFailed(ctx, jobID, runErr.Error(), res.Counters)
		snap, _ := s.deps.Tracker.Complete(jobID, validation.JobStatusFailed, runErr.Error())
		s.emit(progress.Event{
			JobID: jobID, TS: s.deps.Clock.Now().UTC(), Stage: progress.StageJobError,
			Kind: kind, Snapshot: snap, Dur: elapsed, Note: runErr.Error(),
		})
		log.Error("job failed", zap.Int("processed", res.Counters.Processed), zap.Error(runErr))
		return validation.Summary{}, runErr
	}

	summary := validation.Summarize(res.Verdicts)
	storeCtx := context.WithoutCancel(ctx)
	if err := s.deps.Store.UpdateJobStatus(storeCtx, jobID, validation.JobStatusCompleted, "", res.Counters); err != nil {
		s.deps.Tracker.Complete(jobID, validation.JobStatusFailed, err.Error())
		metrics.ObserveJob(string(validation.JobStatusFailed))
		return validation.Summary{}, fmt.Errorf("mark job completed: %w", err)
	}
	snap, _ := s.deps.Tracker.Complete(jobID, validation.JobStatusCompleted, "")
	metrics.ObserveJob(string(validation.JobStatusCompleted))
	s.emit(progress.Event{
		JobID: jobID, TS: s.deps.Clock.Now().UTC(), Stage: progress.StageJobDone,
		Kind: kind, Snapshot: snap, Summary: &summary, Dur: elapsed,
	})
	log.Info("job completed",
		zap.Int("total", summary.Total),
		zap.Int("valid", summary.Valid),
		zap.Float64("success_rate", summary.SuccessRate),
		zap.Duration("elapsed", elapsed),
	)
	return summary, nil
}

// Progress returns the live snapshot for a job still held by the tracker.
func (s *Service) Progress(jobID string) (progress.Snapshot, bool) {
	return s.deps.Tracker.Get(jobID)
}

// Job returns the persisted job record.
func (s *Service) Job(ctx context.Context, jobID string) (validation.Job, error) {
	job, err := s.deps.Store.GetJob(ctx, jobID)
	if err != nil {
		return validation.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Results returns the persisted verdicts for a job.
func (s *Service) Results(ctx context.Context, jobID string) ([]validation.Verdict, error) {
	verdicts, err := s.deps.Store.ListVerdicts(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	return verdicts, nil
}

// Stats reports governor, queue, cache and tracker occupancy.
func (s *Service) Stats() Stats {
	st := Stats{
		GovernorCapacity: s.deps.Governor.Capacity(),
		GovernorInUse:    s.deps.Governor.InUse(),
		GovernorFree:     s.deps.Governor.QueueDepth(),
		ActiveJobs:       s.deps.Tracker.Active(),
	}
	if s.deps.Admitter != nil {
		st.QueuedJobs = s.deps.Admitter.Pending()
	}
	if sizer, ok := s.deps.Cache.(Sizer); ok {
		st.CacheEntries = sizer.Len()
	}
	return st
}

func (s *Service) executor(kind validation.Kind) (*batch.Executor, error) {
	v, err := s.validatorFor(kind)
	if err != nil {
		return nil, err
	}
	kc := s.cfg.Email
	if kind == validation.KindPhone {
		kc = s.cfg.Phone
	}
	var persister validation.BatchPersister = s.deps.Store
	if s.deps.Archive != nil {
		persister = fanout{s.deps.Store, s.deps.Archive}
	}
	exec, err := batch.New(batch.Config{
		BatchSize:    kc.BatchSize,
		BatchTimeout: kc.BatchTimeout,
		Pause:        s.cfg.BatchPause,
	}, batch.Deps{
		Validator: v,
		Pool:      s.deps.Pools[kind],
		Persister: persister,
		Cache:     s.deps.Cache,
		Tracker:   s.deps.Tracker,
		Emitter:   s.deps.Hub,
		Logger:    s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	return exec, nil
}

func (s *Service) validatorFor(kind validation.Kind) (validation.Validator, error) {
	if _, ok := s.deps.Pools[kind]; !ok {
		return nil, fmt.Errorf("no worker pool for kind %q", kind)
	}
	v, err := s.deps.Factory.NewValidator(kind)
	if err != nil {
		return nil, fmt.Errorf("build validator: %w", err)
	}
	return v, nil
}

func (s *Service) createJob(ctx context.Context, jobID string, kind validation.Kind, total int) error {
	job := validation.Job{
		ID:        jobID,
		Kind:      kind,
		Status:    validation.JobStatusPending,
		Total:     total,
		CreatedAt: s.deps.Clock.Now().UTC(),
	}
	if err := s.deps.Store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// markFailed records the failure even when ctx is already canceled.
func (s *Service) markFailed(ctx context.Context, jobID, errText string, counters validation.JobCounters) {
	metrics.ObserveJob(string(validation.JobStatusFailed))
	if err := s.deps.Store.UpdateJobStatus(context.WithoutCancel(ctx), jobID, validation.JobStatusFailed, errText, counters); err != nil {
		s.log.Error("fail job status update", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) emit(evt progress.Event) {
	if s.deps.Hub != nil {
		s.deps.Hub.Emit(evt)
	}
}

// fanout persists to the job store first, then the archive. An archive
// failure fails the job like a store failure would.
type fanout []validation.BatchPersister

func (f fanout) PersistBatch(ctx context.Context, jobID string, seq int, verdicts []validation.Verdict) error {
	for _, p := range f {
		if err := p.PersistBatch(ctx, jobID, seq, verdicts); err != nil {
			return err
		}
	}
	return nil
}
