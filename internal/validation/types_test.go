package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummarizeRoundsSuccessRate(t *testing.T) {
	t.Parallel()

	verdicts := []Verdict{
		{Valid: true, Elapsed: 100 * time.Millisecond},
		{Valid: false, Elapsed: 200 * time.Millisecond},
		{Valid: false, Elapsed: 300 * time.Millisecond},
	}
	sum := Summarize(verdicts)
	require.Equal(t, 3, sum.Total)
	require.Equal(t, 1, sum.Valid)
	require.Equal(t, 2, sum.Invalid)
	require.InDelta(t, 33.33, sum.SuccessRate, 1e-9)
	require.InDelta(t, 0.2, sum.AvgValidationTime, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, Summary{}, Summarize(nil))
}

func TestSyntheticVerdictsAreInvalid(t *testing.T) {
	t.Parallel()

	timeout := TimeoutVerdict(KindEmail, "a@b.co", time.Second)
	require.False(t, timeout.Valid)
	require.Equal(t, ReasonTimeout, timeout.Reason)
	require.NotNil(t, timeout.Email)
	require.False(t, timeout.Email.SMTPOK)

	procErr := ProcessingErrorVerdict(KindPhone, "123", "boom")
	require.False(t, procErr.Valid)
	require.Equal(t, "processing error: boom", procErr.Message())
	require.NotNil(t, procErr.Phone)
}

func TestJobCountersAdd(t *testing.T) {
	t.Parallel()

	var c JobCounters
	c.Add([]Verdict{{Valid: true}, {Valid: false}, {Valid: true}})
	require.Equal(t, JobCounters{Processed: 3, Valid: 2, Invalid: 1}, c)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseKind(" Email ")
	require.NoError(t, err)
	require.Equal(t, KindEmail, kind)

	_, err = ParseKind("fax")
	require.Error(t, err)
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	emails, removed := Dedupe(KindEmail, []string{"A@x.com", "a@x.com ", "", "b@x.com"})
	require.Equal(t, []string{"A@x.com", "b@x.com"}, emails)
	require.Equal(t, 2, removed)

	phones, removed := Dedupe(KindPhone, []string{"+1 201-555-0123", "+12015550123", "0123"})
	require.Equal(t, []string{"+1 201-555-0123", "0123"}, phones)
	require.Equal(t, 1, removed)
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, JobStatusPending.Terminal())
	require.False(t, JobStatusProcessing.Terminal())
	require.True(t, JobStatusCompleted.Terminal())
	require.True(t, JobStatusFailed.Terminal())
}

func TestVerdictCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := Verdict{
		Item:  "a@example.com",
		Kind:  KindEmail,
		Valid: true,
		Email: &EmailDetails{SyntaxOK: true, MXRecords: []string{"mx1.example.com"}},
	}
	clone := orig.Clone()
	clone.Email.MXRecords[0] = "changed"
	clone.Email.SMTPOK = true

	require.Equal(t, "mx1.example.com", orig.Email.MXRecords[0])
	require.False(t, orig.Email.SMTPOK)
	require.Nil(t, clone.Phone)
}
