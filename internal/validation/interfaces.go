package validation

import (
	"context"
	"io"
	"time"
)

// Validator turns one raw item into a verdict. Implementations never return
// errors; every failure is expressed as an invalid verdict.
type Validator interface {
	Kind() Kind
	Validate(ctx context.Context, item string) Verdict
}

// BatchPersister receives each finished batch of verdicts. A returned error
// fails the job.
type BatchPersister interface {
	PersistBatch(ctx context.Context, jobID string, seq int, verdicts []Verdict) error
}

// JobStore persists job metadata and verdicts.
type JobStore interface {
	BatchPersister
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListVerdicts(ctx context.Context, jobID string) ([]Verdict, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes job notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used for cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem is an admitted job waiting for a runner.
type QueueItem struct {
	JobID      string
	Kind       Kind
	Items      []string
	EnqueuedAt time.Time
}

// Queue buffers admitted jobs between the API and the job runners.
type Queue interface {
	// TryEnqueue adds the item without blocking and reports whether it fit.
	TryEnqueue(item QueueItem) bool
	Dequeue(ctx context.Context) (QueueItem, error)
	Len() int
}
