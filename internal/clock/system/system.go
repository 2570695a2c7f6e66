// Package system provides the wall clock used for job timestamps.
package system

import "time"

// StorePrecision matches the resolution of a Postgres timestamptz column, so
// a timestamp reads back from every job store exactly as it was written.
const StorePrecision = time.Microsecond

// Clock implements validation.Clock.
type Clock struct {
	precision time.Duration
	now       func() time.Time
}

// New returns a Clock truncating to StorePrecision.
func New() *Clock {
	return NewWithPrecision(StorePrecision)
}

// NewWithPrecision returns a Clock truncating to precision; values <= 0 keep
// full resolution.
func NewWithPrecision(precision time.Duration) *Clock {
	return &Clock{precision: precision, now: time.Now}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	t := c.now().UTC()
	if c.precision > 0 {
		t = t.Truncate(c.precision)
	}
	return t
}
