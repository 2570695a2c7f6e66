// Package sinks implements concrete progress consumers: Prometheus job
// metrics, structured logging, and completion notices pushed through a
// validation.Publisher. Each sink satisfies progress.Sink and is safe for
// repeated Consume/Close cycles.
package sinks
