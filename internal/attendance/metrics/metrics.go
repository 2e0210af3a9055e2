package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attendance resource.
// Tracks write outcomes per operation and store latency.
type Metrics struct {
	Operations      *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	PublishFailures prometheus.Counter
}

// New registers the attendance metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mantrip_attendance_operations_total",
			Help: "Attendance operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mantrip_attendance_store_duration_seconds",
			Help:    "Duration of attendance store calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mantrip_attendance_event_publish_failures_total",
			Help: "Attendance change events that could not be published",
		}),
	}
}

// RecordOutcome counts one finished operation.
func (m *Metrics) RecordOutcome(operation, outcome string) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveStore records the duration of a store call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	m.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementPublishFailures() {
	m.PublishFailures.Inc()
}
