package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

func TestSnapshotBar(t *testing.T) {
	t.Parallel()

	cases := []struct {
		processed int
		want      string
	}{
		{processed: 0, want: "░░░░░░░░░░"},
		{processed: 35, want: "███░░░░░░░"},
		{processed: 100, want: "██████████"},
		{processed: 120, want: "██████████"},
	}
	for _, tc := range cases {
		s := Snapshot{Total: 100, Processed: tc.processed}
		require.Equal(t, tc.want, s.Bar(10), "processed=%d", tc.processed)
	}
	require.Empty(t, Snapshot{}.Bar(0))
}

func TestSnapshotPercentHandlesEmptyJob(t *testing.T) {
	t.Parallel()

	require.Zero(t, Snapshot{}.Percent())
	require.Equal(t, 0, Snapshot{Total: 3, Processed: 5}.Remaining())
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0s", FormatDuration(-time.Second))
	require.Equal(t, "59s", FormatDuration(59*time.Second+900*time.Millisecond))
	require.Equal(t, "1m 0s", FormatDuration(time.Minute))
	require.Equal(t, "59m 59s", FormatDuration(time.Hour-time.Second))
	require.Equal(t, "1h 0m", FormatDuration(time.Hour))
	require.Equal(t, "26h 3m", FormatDuration(26*time.Hour+3*time.Minute+59*time.Second))
}

func TestSnapshotString(t *testing.T) {
	t.Parallel()

	s := Snapshot{
		Kind:       validation.KindEmail,
		Status:     validation.JobStatusProcessing,
		Total:      200,
		Processed:  50,
		Valid:      45,
		Invalid:    5,
		Throughput: 12.5,
		ETA:        12 * time.Second,
		ETAKnown:   true,
	}
	out := s.String()
	require.True(t, strings.HasPrefix(out, "Email validation processing\n"))
	require.Contains(t, out, "Progress: 50/200 (25.0%)")
	require.Contains(t, out, "██░░░░░░░░")
	require.Contains(t, out, "Speed: 12.5 items/second")
	require.Contains(t, out, "ETA: 12s")
	require.Contains(t, out, "Valid: 45")
	require.Contains(t, out, "Invalid: 5")
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	require.NoError(t, Event{JobID: "j", TS: now, Stage: StageJobStart}.Validate())
	require.Error(t, Event{TS: now, Stage: StageJobStart}.Validate())
	require.Error(t, Event{JobID: "j", Stage: StageJobStart}.Validate())
	require.Error(t, Event{JobID: "j", TS: now, Stage: "NOPE"}.Validate())
	require.Error(t, Event{JobID: "j", TS: now, Stage: StageBatchDone}.Validate())
	require.NoError(t, Event{JobID: "j", TS: now, Stage: StageBatchDone, Batch: 2}.Validate())
	require.Error(t, Event{JobID: "j", TS: now, Stage: StageJobDone}.Validate())
	require.Error(t, Event{JobID: "j", TS: now, Stage: StageJobError, Dur: -1}.Validate())
	require.True(t, Event{Stage: StageJobError}.Terminal())
	require.False(t, Event{Stage: StageBatchDone}.Terminal())
}
