package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind selects the validation pipeline for an item.
type Kind string

// Supported item kinds.
const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
)

// ParseKind converts user input into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindEmail:
		return KindEmail, nil
	case KindPhone:
		return KindPhone, nil
	default:
		return "", fmt.Errorf("unknown item kind %q", raw)
	}
}

// Reason is the closed set of failure causes attached to invalid verdicts.
type Reason string

// Failure reasons. An invalid verdict carries exactly one of these.
const (
	ReasonInvalidSyntax   Reason = "invalid syntax"
	ReasonDomainNotFound  Reason = "domain does not exist"
	ReasonNoMX            Reason = "no MX records found"
	ReasonSMTPRejected    Reason = "SMTP server not reachable or email rejected"
	ReasonInvalidNumber   Reason = "invalid phone number format or number doesn't exist"
	ReasonUnparseable     Reason = "cannot parse number"
	ReasonTimeout         Reason = "validation timeout"
	ReasonProcessingError Reason = "processing error"
)

// JobStatus represents the lifecycle state of a validation job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Sentinel errors returned by job stores.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
	// ErrQueueClosed is returned by Queue.Dequeue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)

// EmailDetails holds the per-stage outcome of the email pipeline.
type EmailDetails struct {
	SyntaxOK     bool     `json:"syntax_ok"`
	DomainExists bool     `json:"domain_exists"`
	MXExists     bool     `json:"mx_exists"`
	SMTPOK       bool     `json:"smtp_ok"`
	Domain       string   `json:"domain,omitempty"`
	MXRecords    []string `json:"mx_records,omitempty"`
}

// PhoneDetails holds the metadata resolved for a parsed phone number.
type PhoneDetails struct {
	ParseOK       bool     `json:"parse_ok"`
	E164          string   `json:"e164,omitempty"`
	International string   `json:"international,omitempty"`
	National      string   `json:"national,omitempty"`
	Region        string   `json:"region,omitempty"`
	CountryName   string   `json:"country_name,omitempty"`
	CountryCode   string   `json:"country_code,omitempty"`
	Carrier       string   `json:"carrier,omitempty"`
	Location      string   `json:"location,omitempty"`
	NumberType    string   `json:"number_type,omitempty"`
	Timezones     []string `json:"timezones,omitempty"`
}

// Verdict is the outcome record for one validated item.
type Verdict struct {
	Item    string        `json:"item"`
	Kind    Kind          `json:"kind"`
	Valid   bool          `json:"is_valid"`
	Email   *EmailDetails `json:"email,omitempty"`
	Phone   *PhoneDetails `json:"phone,omitempty"`
	Reason  Reason        `json:"error_reason,omitempty"`
	Detail  string        `json:"error_detail,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Cached  bool          `json:"cached,omitempty"`
}

// Message renders the reason and optional detail for display.
func (v Verdict) Message() string {
	switch {
	case v.Reason == "":
		return ""
	case v.Detail == "":
		return string(v.Reason)
	default:
		return string(v.Reason) + ": " + v.Detail
	}
}

// Fail marks the verdict invalid with the given reason.
func (v *Verdict) Fail(reason Reason, detail string) {
	v.Valid = false
	v.Reason = reason
	v.Detail = detail
}

// Clone returns a copy that shares no memory with v.
func (v Verdict) Clone() Verdict {
	if v.Email != nil {
		email := *v.Email
		email.MXRecords = append([]string(nil), v.Email.MXRecords...)
		v.Email = &email
	}
	if v.Phone != nil {
		phone := *v.Phone
		phone.Timezones = append([]string(nil), v.Phone.Timezones...)
		v.Phone = &phone
	}
	return v
}

// TimeoutVerdict builds the synthetic verdict used when an item misses its deadline.
func TimeoutVerdict(kind Kind, item string, elapsed time.Duration) Verdict {
	v := newSynthetic(kind, item, elapsed)
	v.Fail(ReasonTimeout, "")
	return v
}

// ProcessingErrorVerdict builds the synthetic verdict used when validation
// itself fails unexpectedly.
func ProcessingErrorVerdict(kind Kind, item string, msg string) Verdict {
	v := newSynthetic(kind, item, 0)
	v.Fail(ReasonProcessingError, msg)
	return v
}

func newSynthetic(kind Kind, item string, elapsed time.Duration) Verdict {
	v := Verdict{Item: item, Kind: kind, Elapsed: elapsed}
	switch kind {
	case KindEmail:
		v.Email = &EmailDetails{}
	case KindPhone:
		v.Phone = &PhoneDetails{}
	}
	return v
}

// Job represents the metadata persisted for each submitted validation request.
type Job struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Status      JobStatus   `json:"status"`
	Total       int         `json:"total_items"`
	Counters    JobCounters `json:"counters"`
	ErrorText   string      `json:"error_text,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// JobCounters tracks cumulative progress for a job.
type JobCounters struct {
	Processed int `json:"processed_items"`
	Valid     int `json:"valid_items"`
	Invalid   int `json:"invalid_items"`
}

// Add folds a batch of verdicts into the counters.
func (c *JobCounters) Add(verdicts []Verdict) {
	for _, v := range verdicts {
		c.Processed++
		if v.Valid {
			c.Valid++
		} else {
			c.Invalid++
		}
	}
}

// Summary is the final report emitted when a job finishes.
type Summary struct {
	Total             int     `json:"total"`
	Valid             int     `json:"valid"`
	Invalid           int     `json:"invalid"`
	SuccessRate       float64 `json:"success_rate"`
	AvgValidationTime float64 `json:"avg_validation_time"`
}

// Summarize computes the final report for a set of verdicts. SuccessRate is a
// percentage rounded to two decimals; AvgValidationTime is in seconds.
func Summarize(verdicts []Verdict) Summary {
	if len(verdicts) == 0 {
		return Summary{}
	}
	var (
		valid   int
		elapsed time.Duration
	)
	for _, v := range verdicts {
		if v.Valid {
			valid++
		}
		elapsed += v.Elapsed
	}
	total := len(verdicts)
	return Summary{
		Total:             total,
		Valid:             valid,
		Invalid:           total - valid,
		SuccessRate:       round2(float64(valid) / float64(total) * 100),
		AvgValidationTime: round3(elapsed.Seconds() / float64(total)),
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
