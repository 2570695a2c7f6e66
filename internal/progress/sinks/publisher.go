package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/progress"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// Notification topics published on terminal events.
const (
	TopicJobCompleted = "job.completed"
	TopicJobFailed    = "job.failed"
)

// CompletionNotice is the payload published when a job finishes.
type CompletionNotice struct {
	JobID       string              `json:"job_id"`
	Kind        validation.Kind     `json:"kind"`
	Status      string              `json:"status"`
	Summary     *validation.Summary `json:"summary,omitempty"`
	Error       string              `json:"error,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
	CompletedAt time.Time           `json:"completed_at"`
}

// PublisherSink forwards terminal job events to a validation.Publisher. Batch
// events are ignored.
type PublisherSink struct {
	publisher validation.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink constructs a PublisherSink. When topic is empty the notice
// type (job.completed / job.failed) is used as the topic.
func NewPublisherSink(pub validation.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: pub, topic: topic, logger: logger}
}

// Consume publishes one notice per terminal event and joins any failures.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		notice, topic := s.notice(evt)
		id, err := s.publisher.Publish(ctx, topic, notice)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s for job %s: %w", notice.Status, evt.JobID, err))
			continue
		}
		s.logger.Debug("completion notice published",
			zap.String("job_id", evt.JobID),
			zap.String("topic", topic),
			zap.String("message_id", id),
		)
	}
	return errors.Join(errs...)
}

func (s *PublisherSink) notice(evt progress.Event) (CompletionNotice, string) {
	notice := CompletionNotice{
		JobID:       evt.JobID,
		Kind:        evt.Kind,
		Summary:     evt.Summary,
		DurationMs:  evt.Dur.Milliseconds(),
		CompletedAt: evt.TS.UTC(),
	}
	typ := TopicJobCompleted
	notice.Status = string(validation.JobStatusCompleted)
	if evt.Stage == progress.StageJobError {
		typ = TopicJobFailed
		notice.Status = string(validation.JobStatusFailed)
		notice.Error = evt.Note
	}
	topic := s.topic
	if topic == "" {
		topic = typ
	}
	return notice, topic
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
