// Package batch runs one job's items through a validator in fixed-size
// batches. Each batch fans out onto the shared worker pool under a
// batch-level deadline, and every item yields exactly one verdict: real,
// cached, or synthetic (timeout / processing error).
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/metrics"
	"github.com/Moxx-Company/validator-pro/internal/progress"
	"github.com/Moxx-Company/validator-pro/internal/validation"
	"github.com/Moxx-Company/validator-pro/internal/worker"
)

const (
	defaultBatchSize    = 50
	defaultBatchTimeout = 15 * time.Second
)

// Cache is the subset of the result cache the executor uses.
type Cache interface {
	Get(kind validation.Kind, normalized string) (validation.Verdict, bool)
	Set(kind validation.Kind, normalized string, verdict validation.Verdict)
}

// Pool schedules item validations on long-lived goroutines.
type Pool interface {
	Submit(ctx context.Context, task worker.Task, onPanic worker.PanicHandler) error
}

// ReportFunc receives the tracker snapshot after each batch. It must return
// quickly; the executor does not wait on slow consumers.
type ReportFunc func(snap progress.Snapshot)

// Config controls batching.
type Config struct {
	BatchSize    int
	BatchTimeout time.Duration
	// Pause is slept between batches, not after the last one.
	Pause time.Duration
}

// Deps are the collaborators an Executor drives. Cache, Tracker and Emitter
// are optional.
type Deps struct {
	Validator validation.Validator
	Pool      Pool
	Persister validation.BatchPersister
	Cache     Cache
	Tracker   *progress.Tracker
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

// Result is what a completed or failed run produced.
type Result struct {
	Verdicts []validation.Verdict
	Counters validation.JobCounters
	Batches  int
}

// Executor processes one job's item list.
type Executor struct {
	cfg       Config
	kind      validation.Kind
	validator validation.Validator
	pool      Pool
	persister validation.BatchPersister
	cache     Cache
	tracker   *progress.Tracker
	emitter   progress.Emitter
	logger    *zap.Logger
	now       func() time.Time
}

// New constructs an Executor.
func New(cfg Config, deps Deps) (*Executor, error) {
	if deps.Validator == nil {
		return nil, errors.New("batch executor requires a validator")
	}
	if deps.Pool == nil {
		return nil, errors.New("batch executor requires a worker pool")
	}
	if deps.Persister == nil {
		return nil, errors.New("batch executor requires a persister")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:       cfg,
		kind:      deps.Validator.Kind(),
		validator: deps.Validator,
		pool:      deps.Pool,
		persister: deps.Persister,
		cache:     deps.Cache,
		tracker:   deps.Tracker,
		emitter:   deps.Emitter,
		logger:    logger.Named("executor"),
		now:       time.Now,
	}, nil
}

// Run validates items batch by batch, in order. The only error sources are a
// failed persist and ctx ending between batches; per-item failures are
// verdicts. On error the verdicts produced so far are still returned.
func (e *Executor) Run(ctx context.Context, jobID string, items []string, report ReportFunc) (Result, error) {
	res := Result{Verdicts: make([]validation.Verdict, 0, len(items))}
	if e.tracker != nil {
		e.tracker.Start(jobID, e.kind, len(items))
	}

	for start, seq := 0, 1; start < len(items); start, seq = start+e.cfg.BatchSize, seq+1 {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("job interrupted before batch %d: %w", seq, err)
		}
		end := min(start+e.cfg.BatchSize, len(items))

		batchStart := e.now()
		verdicts := e.runBatch(ctx, jobID, items[start:end])
		elapsed := e.now().Sub(batchStart)

		if err := e.persister.PersistBatch(ctx, jobID, seq, verdicts); err != nil {
			return res, fmt.Errorf("persist batch %d: %w", seq, err)
		}
		res.Verdicts = append(res.Verdicts, verdicts...)
		res.Counters.Add(verdicts)
		res.Batches = seq

		e.logger.Debug("batch done",
			zap.String("job_id", jobID),
			zap.Int("batch", seq),
			zap.Int("items", len(verdicts)),
			zap.Duration("elapsed", elapsed),
		)
		e.publish(jobID, len(items), seq, elapsed, res.Counters, report)

		if end < len(items) && e.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.cfg.Pause):
			}
		}
	}
	return res, nil
}

type indexed struct {
	idx     int
	verdict validation.Verdict
}

func (e *Executor) runBatch(ctx context.Context, jobID string, items []string) []validation.Verdict {
	start := e.now()
	batchCtx, cancel := context.WithTimeout(ctx, e.cfg.BatchTimeout)
	defer cancel()

	out := make([]validation.Verdict, len(items))
	filled := make([]bool, len(items))
	normalized := make([]string, len(items))
	results := make(chan indexed, len(items))
	pending := 0

submit:
	for i, item := range items {
		normalized[i] = validation.Normalize(e.kind, item)
		if e.cache != nil {
			if v, ok := e.cache.Get(e.kind, normalized[i]); ok {
				v.Item = item
				out[i], filled[i] = v, true
				continue
			}
		}
		idx, raw := i, item
		err := e.pool.Submit(batchCtx, func(taskCtx context.Context) {
			results <- indexed{idx: idx, verdict: e.validator.Validate(taskCtx, raw)}
		}, func(rec any) {
			results <- indexed{idx: idx, verdict: validation.ProcessingErrorVerdict(e.kind, raw, fmt.Sprint(rec))}
		})
		if err != nil {
			if errors.Is(err, worker.ErrPoolClosed) {
				e.logger.Error("worker pool closed mid-batch", zap.String("job_id", jobID))
				for j := i; j < len(items); j++ {
					out[j], filled[j] = validation.ProcessingErrorVerdict(e.kind, items[j], err.Error()), true
				}
			}
			// Deadline hit while waiting for a free worker: the rest time out.
			break submit
		}
		pending++
	}

collect:
	for pending > 0 {
		select {
		case r := <-results:
			pending--
			out[r.idx], filled[r.idx] = r.verdict, true
			if e.cache != nil {
				e.cache.Set(e.kind, normalized[r.idx], r.verdict)
			}
		case <-batchCtx.Done():
			break collect
		}
	}

	timedOut := 0
	for i := range out {
		if !filled[i] {
			out[i] = validation.TimeoutVerdict(e.kind, items[i], e.now().Sub(start))
			timedOut++
		}
		out[i].Item = items[i]
		metrics.ObserveVerdict(string(e.kind), out[i].Valid, string(out[i].Reason), out[i].Elapsed)
	}
	if timedOut > 0 {
		metrics.ObserveBatchTimeouts(string(e.kind), timedOut)
		e.logger.Warn("batch deadline reached",
			zap.String("job_id", jobID),
			zap.Int("timed_out", timedOut),
			zap.Int("items", len(items)),
			zap.Duration("batch_timeout", e.cfg.BatchTimeout),
		)
	}
	return out
}

func (e *Executor) publish(jobID string, total, seq int, elapsed time.Duration, counters validation.JobCounters, report ReportFunc) {
	var snap progress.Snapshot
	if e.tracker != nil {
		snap, _ = e.tracker.Update(jobID, counters)
	} else {
		snap = progress.Snapshot{
			JobID:     jobID,
			Kind:      e.kind,
			Status:    validation.JobStatusProcessing,
			Total:     total,
			Processed: counters.Processed,
			Valid:     counters.Valid,
			Invalid:   counters.Invalid,
		}
	}
	if e.emitter != nil {
		e.emitter.Emit(progress.Event{
			JobID:    jobID,
			TS:       e.now().UTC(),
			Stage:    progress.StageBatchDone,
			Kind:     e.kind,
			Batch:    seq,
			Snapshot: snap,
			Dur:      elapsed,
		})
	}
	if report == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("progress report panicked", zap.String("job_id", jobID), zap.Any("panic", rec))
		}
	}()
	report(snap)
}
