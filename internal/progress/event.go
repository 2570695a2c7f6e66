package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart  Stage = "JOB_START"
	StageBatchDone Stage = "BATCH_DONE"
	StageJobDone   Stage = "JOB_DONE"
	StageJobError  Stage = "JOB_ERROR"
)

// Event captures a single job milestone.
type Event struct {
	// JobID identifies the job the event belongs to.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Kind is the item kind validated by the job.
	Kind validation.Kind
	// Batch is the 1-based batch ordinal for BATCH_DONE events.
	Batch int
	// Snapshot is the tracker view right after the milestone.
	Snapshot Snapshot
	// Summary is set on JOB_DONE.
	Summary *validation.Summary
	// Dur is the batch duration for BATCH_DONE and the job runtime for terminal stages.
	Dur time.Duration
	// Note carries low-volume context such as the failure text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobError:
	case StageBatchDone:
		if e.Batch < 1 {
			return errors.New("batch done requires batch ordinal")
		}
	case StageJobDone:
		if e.Summary == nil {
			return errors.New("job done requires summary")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes the job.
func (e Event) Terminal() bool {
	return e.Stage == StageJobDone || e.Stage == StageJobError
}
