package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Moxx-Company/validator-pro/internal/progress"
)

// PrometheusSink exports job lifecycle metrics via Prometheus. It owns the
// collectors for jobs started/completed/running, job runtime, and batch
// durations.
type PrometheusSink struct {
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	jobItems      *prometheus.HistogramVec

	batchesDone   *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_progress_jobs_started_total",
			Help: "Total jobs that have started, by kind.",
		}, []string{"kind"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_progress_jobs_completed_total",
			Help: "Total jobs finished, by kind and result.",
		}, []string{"kind", "result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "validator_progress_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validator_progress_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"kind", "result"}),
		jobItems: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validator_progress_job_items",
			Help:    "Items per finished job.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		}, []string{"kind"}),
		batchesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_progress_batches_total",
			Help: "Batches finished, by kind.",
		}, []string{"kind"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validator_progress_batch_duration_seconds",
			Help:    "Wall time per batch, by kind.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 8, 10, 15, 30},
		}, []string{"kind"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.jobItems,
		s.batchesDone,
		s.batchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	kind := string(evt.Kind)
	if kind == "" {
		kind = "unknown"
	}
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.WithLabelValues(kind).Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageBatchDone:
		s.batchesDone.WithLabelValues(kind).Inc()
		if evt.Dur > 0 {
			s.batchDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
		}
	case progress.StageJobDone:
		s.finish(evt, kind, "success")
	case progress.StageJobError:
		s.finish(evt, kind, "error")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, kind, result string) {
	s.jobsCompleted.WithLabelValues(kind, result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(kind, result).Observe(evt.Dur.Seconds())
	}
	if evt.Snapshot.Total > 0 {
		s.jobItems.WithLabelValues(kind).Observe(float64(evt.Snapshot.Total))
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
