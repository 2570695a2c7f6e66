// Package progress tracks live job progress and fans job milestones out to
// pluggable sinks. The Tracker holds the queryable per-job snapshot; the Hub
// batches events on a background goroutine so reporting never blocks
// validation.
package progress
