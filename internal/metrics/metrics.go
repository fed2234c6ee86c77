// Package metrics exposes alert execution counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmate/alert-service/internal/model"
)

// Recorder implements alert.Recorder on a private registry.
type Recorder struct {
	registry      *prometheus.Registry
	alertsTotal   *prometheus.CounterVec
	matchesTotal  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, plus the Go and process
// collectors.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	r.alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alerts",
		Name:      "executions_total",
		Help:      "Alert executions by cadence and outcome",
	}, []string{"cadence", "outcome"})
	r.matchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alerts",
		Name:      "new_matches_total",
		Help:      "New catalog matches found by cadence",
	}, []string{"cadence"})
	r.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alerts",
		Name:      "notifications_total",
		Help:      "Notification hand-offs by outcome",
	}, []string{"outcome"})
	r.batchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alerts",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one batch run",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"cadence"})

	r.registry.MustRegister(
		r.alertsTotal,
		r.matchesTotal,
		r.notifications,
		r.batchDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) AlertExecuted(cadence model.Cadence, outcome string) {
	r.alertsTotal.WithLabelValues(string(cadence), outcome).Inc()
}

func (r *Recorder) MatchesFound(cadence model.Cadence, n int) {
	if n > 0 {
		r.matchesTotal.WithLabelValues(string(cadence)).Add(float64(n))
	}
}

func (r *Recorder) NotificationEmitted(outcome string) {
	r.notifications.WithLabelValues(outcome).Inc()
}

func (r *Recorder) BatchFinished(cadence model.Cadence, d time.Duration) {
	r.batchDuration.WithLabelValues(string(cadence)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
