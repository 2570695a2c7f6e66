// Package worker holds the goroutines that do the blocking work: a shared
// bounded pool for per-item validation and the job runners that drain the
// admission queue.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// JobRunner executes one admitted job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, jobID string, kind validation.Kind, items []string) (validation.Summary, error)
}

// Worker consumes queue items and hands them to the runner.
type Worker struct {
	queue  validation.Queue
	runner JobRunner
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue validation.Queue, runner JobRunner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, runner: runner, logger: logger}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, validation.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.Int("items", len(item.Items)))
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item validation.QueueItem) {
	summary, err := w.runner.Run(ctx, item.JobID, item.Kind, item.Items)
	if err != nil {
		w.logger.Error("job failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.logger.Info("job finished",
		zap.String("job_id", item.JobID),
		zap.Int("total", summary.Total),
		zap.Int("valid", summary.Valid),
		zap.Float64("success_rate", summary.SuccessRate),
	)
}
