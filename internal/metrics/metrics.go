// Package metrics records operation counts, durations, and errors for the
// transcription engine, exposed over HTTP for Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface the rest of the module depends on, kept
// small and interface-shaped so engine tests can swap in a no-op or an
// in-memory fake without touching a real registry.
type Recorder interface {
	RecordOperation(op, status string)
	RecordDuration(op string, seconds float64)
	RecordError(op, errType string)
}

// Prometheus implements Recorder against a prometheus.Registry.
type Prometheus struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	errors     *prometheus.CounterVec
}

// NewPrometheus registers the engine's metrics against registry and
// returns a Recorder backed by it.
func NewPrometheus(registry prometheus.Registerer) *Prometheus {
	factory := promauto.With(registry)

	return &Prometheus{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediatranscribe",
			Name:      "operations_total",
			Help:      "Count of pipeline operations by name and status.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediatranscribe",
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediatranscribe",
			Name:      "operation_errors_total",
			Help:      "Count of pipeline operation errors by name and error type.",
		}, []string{"operation", "error_type"}),
	}
}

func (p *Prometheus) RecordOperation(op, status string) {
	p.operations.WithLabelValues(op, status).Inc()
}

func (p *Prometheus) RecordDuration(op string, seconds float64) {
	p.durations.WithLabelValues(op).Observe(seconds)
}

func (p *Prometheus) RecordError(op, errType string) {
	p.errors.WithLabelValues(op, errType).Inc()
}

// noop discards every recording; used when METRICS_ADDR is not set.
type noop struct{}

func (noop) RecordOperation(string, string) {}
func (noop) RecordDuration(string, float64) {}
func (noop) RecordError(string, string)     {}

// Noop returns a Recorder that does nothing.
func Noop() Recorder { return noop{} }

// Handler returns the HTTP handler that serves registry's metrics in the
// Prometheus text exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Timer starts a timer whose Stop method records the elapsed duration for
// op against rec. Usage: defer metrics.Timer(rec, "transcribe")()
func Timer(rec Recorder, op string) func() {
	start := time.Now()
	return func() {
		rec.RecordDuration(op, time.Since(start).Seconds())
	}
}
