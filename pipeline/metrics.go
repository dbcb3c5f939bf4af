package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK      = "ok"
	statusSkipped = "skipped"
	statusError   = "error"
)

// Metrics holds the Prometheus collectors updated by an Executor. Each
// Metrics owns its registry so several executors can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Runs              *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
}

// NewMetrics creates and registers the executor collectors under namespace
// ("reify" when empty).
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "reify"
	}
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of pipeline operations by effect and status",
		}, []string{"effect", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"effect"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by pipeline name and status",
		}, []string{"pipeline", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline"}),
	}
	reg.MustRegister(m.Operations, m.OperationDuration, m.Runs, m.RunDuration)
	return m
}

// Registry returns the Prometheus registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) observeOperation(effect, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(effect, status).Inc()
	if status != statusSkipped {
		m.OperationDuration.WithLabelValues(effect).Observe(d.Seconds())
	}
}

func (m *Metrics) observeRun(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(name, status).Inc()
	m.RunDuration.WithLabelValues(name).Observe(d.Seconds())
}
