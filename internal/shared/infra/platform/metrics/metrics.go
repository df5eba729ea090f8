package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/bus"
	"github.com/davicafu/feedbacklab/internal/shared/infra/platform/queue"
)

// Metrics agrupa las métricas Prometheus del bus de eventos y de las colas.
// Implementa bus.Metrics y queue.Observer.
type Metrics struct {
	EventsPublished   *prometheus.CounterVec
	EnqueueErrors     *prometheus.CounterVec
	EventsUnhandled   *prometheus.CounterVec
	HandlerExecutions *prometheus.CounterVec

	JobsCompleted *prometheus.CounterVec
	JobsRetried   *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobLatency    *prometheus.HistogramVec
}

var (
	_ bus.Metrics    = (*Metrics)(nil)
	_ queue.Observer = (*Metrics)(nil)
)

// New registra las métricas en reg. Con reg nil usa el registro global.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events enqueued by the event store",
		}, []string{"event"}),

		EnqueueErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enqueue_errors_total",
			Help:      "Domain events that could not be enqueued",
		}, []string{"event"}),

		EventsUnhandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_unhandled_total",
			Help:      "Delivered events with no registered handler",
		}, []string{"event"}),

		HandlerExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_executions_total",
			Help:      "Handler invocations by outcome",
		}, []string{"event", "handler", "status"}),

		JobsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_completed_total",
			Help:      "Jobs processed successfully",
		}, []string{"queue", "job"}),

		JobsRetried: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_retried_total",
			Help:      "Jobs rescheduled after a failed attempt",
		}, []string{"queue", "job"}),

		JobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_failed_total",
			Help:      "Jobs that exhausted their attempts",
		}, []string{"queue", "job"}),

		JobLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_job_latency_seconds",
			Help:      "Time from enqueue to final outcome",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 15, 30},
		}, []string{"queue"}),
	}
}

func (m *Metrics) IncPublished(event string)    { m.EventsPublished.WithLabelValues(event).Inc() }
func (m *Metrics) IncEnqueueError(event string) { m.EnqueueErrors.WithLabelValues(event).Inc() }
func (m *Metrics) IncUnhandled(event string)    { m.EventsUnhandled.WithLabelValues(event).Inc() }

func (m *Metrics) ObserveHandler(event, handler string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.HandlerExecutions.WithLabelValues(event, handler, status).Inc()
}

func (m *Metrics) JobCompleted(q string, job *queue.Job) {
	m.JobsCompleted.WithLabelValues(q, job.Name).Inc()
	m.observeLatency(q, job)
}

func (m *Metrics) JobRetried(q string, job *queue.Job, _ time.Duration) {
	m.JobsRetried.WithLabelValues(q, job.Name).Inc()
}

func (m *Metrics) JobFailed(q string, job *queue.Job) {
	m.JobsFailed.WithLabelValues(q, job.Name).Inc()
	m.observeLatency(q, job)
}

func (m *Metrics) observeLatency(q string, job *queue.Job) {
	if job.Timestamp.IsZero() {
		return
	}
	m.JobLatency.WithLabelValues(q).Observe(time.Since(job.Timestamp).Seconds())
}
