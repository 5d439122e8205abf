package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/backlog/ext"
	"github.com/xraph/backlog/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobEnqueued   = (*MetricsExtension)(nil)
	_ ext.JobStarted    = (*MetricsExtension)(nil)
	_ ext.JobCompleted  = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.JobRetrying   = (*MetricsExtension)(nil)
	_ ext.JobCanceled   = (*MetricsExtension)(nil)
	_ ext.JobFatal      = (*MetricsExtension)(nil)
	_ ext.JobsRecovered = (*MetricsExtension)(nil)
)

const namespace = "backlog"

// MetricsExtension records system-wide lifecycle metrics as Prometheus
// collectors labelled by type tag. Register it as a backlog extension and
// expose the registerer through promhttp.
type MetricsExtension struct {
	Enqueued  *prometheus.CounterVec
	Started   *prometheus.CounterVec
	Completed *prometheus.CounterVec
	Retried   *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Canceled  *prometheus.CounterVec
	Fatal     *prometheus.CounterVec
	Recovered prometheus.Counter
	InFlight  prometheus.Gauge
	Duration  *prometheus.HistogramVec
}

// NewMetricsExtension creates a MetricsExtension registered on the
// default Prometheus registerer.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsExtensionWithRegisterer creates a MetricsExtension and
// registers its collectors on reg. Use a fresh prometheus.NewRegistry()
// in tests.
func NewMetricsExtensionWithRegisterer(reg prometheus.Registerer) *MetricsExtension {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      name,
			Help:      help,
		}, []string{"type"})
	}

	m := &MetricsExtension{
		Enqueued:  counter("enqueued_total", "Records accepted by the engine."),
		Started:   counter("started_total", "Attempts begun by a worker."),
		Completed: counter("completed_total", "Records resolved Success."),
		Retried:   counter("retried_total", "Attempts that asked for a retry."),
		Failed:    counter("failed_total", "Records resolved Failed."),
		Canceled:  counter("canceled_total", "Records resolved Canceled."),
		Fatal:     counter("fatal_total", "Attempts that ended in a fatal failure."),
		Recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "recovered_total",
			Help:      "Persisted records reloaded at startup.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "in_flight",
			Help:      "Attempts currently running.",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "success_duration_seconds",
			Help:      "Wall time of successful attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.Enqueued, m.Started, m.Completed, m.Retried, m.Failed,
		m.Canceled, m.Fatal, m.Recovered, m.InFlight, m.Duration,
	)
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(_ context.Context, j *job.Job) error {
	m.Enqueued.WithLabelValues(j.TypeTag).Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, j *job.Job) error {
	m.Started.WithLabelValues(j.TypeTag).Inc()
	m.InFlight.Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	m.Completed.WithLabelValues(j.TypeTag).Inc()
	m.Duration.WithLabelValues(j.TypeTag).Observe(elapsed.Seconds())
	m.InFlight.Dec()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, j *job.Job, _ int, _ time.Time) error {
	m.Retried.WithLabelValues(j.TypeTag).Inc()
	m.InFlight.Dec()
	return nil
}

// OnJobFailed implements ext.JobFailed. Failed records that never started
// (expired or cascaded) do not touch the in-flight gauge.
func (m *MetricsExtension) OnJobFailed(_ context.Context, j *job.Job, _ error) error {
	m.Failed.WithLabelValues(j.TypeTag).Inc()
	if j.Running {
		m.InFlight.Dec()
	}
	return nil
}

// OnJobCanceled implements ext.JobCanceled.
func (m *MetricsExtension) OnJobCanceled(_ context.Context, j *job.Job) error {
	m.Canceled.WithLabelValues(j.TypeTag).Inc()
	if j.Running {
		m.InFlight.Dec()
	}
	return nil
}

// OnJobFatal implements ext.JobFatal.
func (m *MetricsExtension) OnJobFatal(_ context.Context, j *job.Job, _ error) error {
	m.Fatal.WithLabelValues(j.TypeTag).Inc()
	return nil
}

// OnJobsRecovered implements ext.JobsRecovered.
func (m *MetricsExtension) OnJobsRecovered(_ context.Context, count int) error {
	m.Recovered.Add(float64(count))
	return nil
}
