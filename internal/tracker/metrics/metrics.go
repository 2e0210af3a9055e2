package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the reconciliation engine: toggle outcomes, remote call
// latency and loads.
type Metrics struct {
	Toggles        *prometheus.CounterVec
	RemoteDuration *prometheus.HistogramVec
	Loads          *prometheus.CounterVec
	PendingWrites  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Toggles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mantrip_tracker_toggles_total",
			Help: "Attendance toggles by final phase",
		}, []string{"outcome"}),
		RemoteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mantrip_tracker_remote_call_duration_seconds",
			Help:    "Duration of calls from the tracker to the attendance store",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		Loads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mantrip_tracker_loads_total",
			Help: "Full record set loads by outcome",
		}, []string{"outcome"}),
		PendingWrites: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mantrip_tracker_pending_writes",
			Help: "Optimistic writes awaiting the store",
		}),
	}
}

func (m *Metrics) RecordToggle(outcome string) {
	m.Toggles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRemote(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RemoteDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordLoad(outcome string) {
	m.Loads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPending(n int) {
	m.PendingWrites.Set(float64(n))
}
