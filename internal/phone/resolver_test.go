package phone

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

func newTestResolver(cfg Config) *Resolver {
	cfg.Logger = zap.NewNop()
	return New(cfg)
}

func TestValidateInternationalNumber(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{})

	v := r.Validate(context.Background(), "+1 650-253-0000")
	require.True(t, v.Valid, v.Message())
	require.Equal(t, validation.KindPhone, v.Kind)
	require.NotNil(t, v.Phone)
	require.True(t, v.Phone.ParseOK)
	require.Equal(t, "+16502530000", v.Phone.E164)
	require.Equal(t, "US", v.Phone.Region)
	require.Equal(t, "United States", v.Phone.CountryName)
	require.Equal(t, "+1", v.Phone.CountryCode)
	require.NotEmpty(t, v.Phone.Carrier)
	require.NotEmpty(t, v.Phone.Timezones)
}

func TestValidateInfersRegion(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{})

	cases := []struct {
		name   string
		input  string
		region string
		e164   string
	}{
		{name: "nanp 10 digit", input: "(650) 253-0000", region: "US", e164: "+16502530000"},
		{name: "nanp with trunk 1", input: "1 650 253 0000", region: "US", e164: "+16502530000"},
		{name: "gb mobile", input: "07400 123456", region: "GB", e164: "+447400123456"},
		{name: "india mobile", input: "98765 43210", region: "IN", e164: "+919876543210"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := r.Validate(context.Background(), tc.input)
			require.True(t, v.Valid, v.Message())
			require.Equal(t, tc.region, v.Phone.Region)
			require.Equal(t, tc.e164, v.Phone.E164)
		})
	}
}

func TestValidateDefaultRegionWins(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{DefaultRegion: "gb"})

	v := r.Validate(context.Background(), "020 7946 0958")
	require.True(t, v.Valid, v.Message())
	require.Equal(t, "GB", v.Phone.Region)
	require.Equal(t, "+442079460958", v.Phone.E164)
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{})

	cases := []struct {
		name    string
		input   string
		reason  validation.Reason
		parseOK bool
	}{
		{name: "letters", input: "notanumber", reason: validation.ReasonInvalidSyntax},
		{name: "too few digits", input: "12", reason: validation.ReasonInvalidSyntax},
		{name: "plus in middle", input: "12+34567", reason: validation.ReasonInvalidSyntax},
		{name: "short number", input: "1234", reason: validation.ReasonInvalidNumber, parseOK: true},
		{name: "bad country code", input: "+0123456789", reason: validation.ReasonUnparseable},
		{name: "zero country code", input: "+000", reason: validation.ReasonUnparseable},
		{name: "zero country code spaced", input: "+0 555 1234", reason: validation.ReasonUnparseable},
		{name: "all zeros", input: "+00000000", reason: validation.ReasonUnparseable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := r.Validate(context.Background(), tc.input)
			require.False(t, v.Valid)
			require.Equal(t, tc.reason, v.Reason)
			require.NotNil(t, v.Phone)
			require.Equal(t, tc.parseOK, v.Phone.ParseOK)
			require.Empty(t, v.Phone.E164)
		})
	}
}

func TestValidateParsedButInvalidNumber(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{})

	v := r.Validate(context.Background(), "+15551234567")
	require.False(t, v.Valid)
	require.Equal(t, validation.ReasonInvalidNumber, v.Reason)
	require.True(t, v.Phone.ParseOK)
	require.Equal(t, "US", v.Phone.Region)
	require.Equal(t, "+1", v.Phone.CountryCode)
	require.Empty(t, v.Phone.E164)
}

func TestValidateMixedList(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{})

	items := []string{"+15551234567", "1234", "notanumber"}
	verdicts := make([]validation.Verdict, 0, len(items))
	for _, item := range items {
		verdicts = append(verdicts, r.Validate(context.Background(), item))
	}
	require.Len(t, verdicts, len(items))

	require.True(t, verdicts[0].Phone.ParseOK)
	require.Equal(t, "US", verdicts[0].Phone.Region)
	for i, v := range verdicts {
		require.Equal(t, items[i], v.Item)
		if !v.Valid {
			require.NotEmpty(t, v.Reason, v.Item)
		}
	}
	require.False(t, verdicts[1].Valid)
	require.False(t, verdicts[2].Valid)
	require.False(t, verdicts[2].Phone.ParseOK)
}

func TestValidateTimeout(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{Timeout: 20 * time.Millisecond})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	r.resolve = func(raw string) validation.Verdict {
		<-release
		return validation.Verdict{Item: raw, Valid: true}
	}

	v := r.Validate(context.Background(), "+16502530000")
	require.False(t, v.Valid)
	require.Equal(t, validation.ReasonTimeout, v.Reason)
	require.Equal(t, "+16502530000", v.Item)
}

func TestValidateRecoversPanic(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Config{})
	r.resolve = func(string) validation.Verdict { panic("boom") }

	v := r.Validate(context.Background(), "+16502530000")
	require.False(t, v.Valid)
	require.Equal(t, validation.ReasonProcessingError, v.Reason)
	require.Contains(t, v.Detail, "boom")
}

func TestCandidatesOrderAndDedupe(t *testing.T) {
	t.Parallel()

	got := Candidates("6502530000", "CA", DefaultRules, DefaultFallback)
	require.Equal(t, []string{"CA", "US", "IN"}, got[:3])

	seen := map[string]int{}
	for _, region := range got {
		seen[region]++
	}
	for region, n := range seen {
		require.Equal(t, 1, n, region)
	}
	require.Equal(t, IntlCandidate, got[len(got)-1])
}

func TestTriedSummaryTruncates(t *testing.T) {
	t.Parallel()

	msg := triedSummary([]string{"US", "CA", "GB", "IN", "AU", "DE", "FR"})
	require.Equal(t, "no valid parse for regions US, CA, GB, IN, AU (+2 more)", msg)
	require.Equal(t, "no valid parse for regions US", triedSummary([]string{"US"}))
}
