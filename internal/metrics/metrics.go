// Package metrics counts task outcomes with Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/cqlbridge/internal/task"
)

// Recorder is a task.Observer that feeds task outcomes into its own
// registry.
type Recorder struct {
	registry *prometheus.Registry

	// TasksTotal counts terminal tasks by work kind, status and error code.
	TasksTotal *prometheus.CounterVec
	// RetriesTotal counts attempts beyond the first, by work kind.
	RetriesTotal *prometheus.CounterVec
	// TaskDuration is the wall time of executed tasks, retries included.
	TaskDuration *prometheus.HistogramVec
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cqlbridge_tasks_total",
				Help: "Total number of tasks that reached a terminal state",
			},
			[]string{"kind", "status", "code"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cqlbridge_task_retries_total",
				Help: "Total number of task attempts after the first",
			},
			[]string{"kind"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cqlbridge_task_duration_seconds",
				Help:    "Task execution time in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// TaskFinished implements task.Observer.
func (r *Recorder) TaskFinished(_ string, t *task.Task) {
	kind := t.Kind()
	code := ""
	if err := t.Err(); err != nil {
		code = string(err.Code)
	}
	r.TasksTotal.WithLabelValues(kind, string(t.Status()), code).Inc()

	if t.Attempts() == 0 {
		return
	}
	if t.Attempts() > 1 {
		r.RetriesTotal.WithLabelValues(kind).Add(float64(t.Attempts() - 1))
	}
	r.TaskDuration.WithLabelValues(kind).Observe(t.Elapsed().Seconds())
}

// WriteFile writes the current values in the text exposition format,
// for node exporter's textfile collector.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
