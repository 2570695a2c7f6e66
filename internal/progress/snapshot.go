package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const (
	barFilled = "█"
	barEmpty  = "░"
	// DefaultBarWidth is the width used by Snapshot.String.
	DefaultBarWidth = 10
)

// Snapshot is a point-in-time view of one job's progress.
type Snapshot struct {
	JobID       string               `json:"job_id"`
	Kind        validation.Kind      `json:"kind"`
	Status      validation.JobStatus `json:"status"`
	Total       int                  `json:"total_items"`
	Processed   int                  `json:"processed_items"`
	Valid       int                  `json:"valid_items"`
	Invalid     int                  `json:"invalid_items"`
	Throughput  float64              `json:"items_per_second"`
	ETA         time.Duration        `json:"eta_ns"`
	ETAKnown    bool                 `json:"eta_known"`
	Elapsed     time.Duration        `json:"elapsed_ns"`
	ErrorText   string               `json:"error_text,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// Percent returns processed/total as 0..100.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// Remaining returns the number of items without a verdict yet.
func (s Snapshot) Remaining() int {
	if r := s.Total - s.Processed; r > 0 {
		return r
	}
	return 0
}

// Bar renders a fixed-width bar of filled and empty blocks.
func (s Snapshot) Bar(width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(float64(width) * s.Percent() / 100)
	if filled > width {
		filled = width
	}
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}

// ETAString renders the ETA, or "calculating..." when unknown.
func (s Snapshot) ETAString() string {
	if !s.ETAKnown || s.ETA <= 0 {
		return "calculating..."
	}
	return FormatDuration(s.ETA)
}

// String renders a multi-line human-readable progress report.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s validation %s\n", kindTitle(s.Kind), s.Status)
	fmt.Fprintf(&b, "Progress: %d/%d (%.1f%%)\n", s.Processed, s.Total, s.Percent())
	b.WriteString(s.Bar(DefaultBarWidth))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Speed: %.1f items/second\n", s.Throughput)
	fmt.Fprintf(&b, "ETA: %s\n", s.ETAString())
	fmt.Fprintf(&b, "Valid: %d\n", s.Valid)
	fmt.Fprintf(&b, "Invalid: %d", s.Invalid)
	return b.String()
}

// FormatDuration renders whole seconds as "Ns", "Nm Ns" or "Nh Nm".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

func kindTitle(k validation.Kind) string {
	if k == "" {
		return "Item"
	}
	s := string(k)
	return strings.ToUpper(s[:1]) + s[1:]
}
