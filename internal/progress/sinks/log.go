package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. Batch
// milestones log at Debug, lifecycle milestones at Info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.String("kind", string(evt.Kind)),
			zap.Int("processed", evt.Snapshot.Processed),
			zap.Int("total", evt.Snapshot.Total),
			zap.Duration("dur", evt.Dur),
		}
		switch evt.Stage {
		case progress.StageBatchDone:
			fields = append(fields,
				zap.Int("batch", evt.Batch),
				zap.Float64("items_per_second", evt.Snapshot.Throughput),
			)
			s.logger.Debug("progress event", fields...)
		case progress.StageJobError:
			s.logger.Warn("progress event", append(fields, zap.String("note", evt.Note))...)
		default:
			if evt.Summary != nil {
				fields = append(fields,
					zap.Int("valid", evt.Summary.Valid),
					zap.Float64("success_rate", evt.Summary.SuccessRate),
				)
			}
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
