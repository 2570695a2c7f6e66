package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/validator-pro/internal/progress"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobStart, Kind: validation.KindEmail},
		{
			JobID: "job-1",
			TS:    now.Add(2 * time.Second),
			Stage: progress.StageBatchDone,
			Kind:  validation.KindEmail,
			Batch: 1,
			Dur:   2 * time.Second,
		},
		{
			JobID:    "job-1",
			TS:       now.Add(3 * time.Second),
			Stage:    progress.StageJobDone,
			Kind:     validation.KindEmail,
			Snapshot: progress.Snapshot{Total: 50, Processed: 50},
			Summary:  &validation.Summary{Total: 50},
			Dur:      3 * time.Second,
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted.WithLabelValues("email")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("email", "success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("email", "error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.batchesDone.WithLabelValues("email")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.batchDuration, "validator_progress_batch_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobItems, "validator_progress_job_items"))
}

// TestPrometheusSinkTracksRunningJobs ensures duplicate starts do not inflate the gauge.
func TestPrometheusSinkTracksRunningJobs(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Stage: progress.StageJobStart, Kind: validation.KindPhone},
		{JobID: "a", TS: now, Stage: progress.StageJobStart, Kind: validation.KindPhone},
		{JobID: "b", TS: now, Stage: progress.StageJobStart, Kind: validation.KindPhone},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Stage: progress.StageJobError, Kind: validation.KindPhone, Note: "persist failed"},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("phone", "error")))
}

// TestPrometheusSinkRejectsDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
