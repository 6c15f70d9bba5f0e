package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a timeline engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PacketsIngested     prometheus.Counter
	PacketsRejected     prometheus.Counter
	PacketsEvicted      prometheus.Counter
	PacketsBuffered     prometheus.Gauge
	AnomaliesDetected   *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	CleanupRuns         prometheus.Counter
}

// New creates the timeline collectors and registers them with reg.
// Passing nil registers nothing, which keeps tests independent of global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_packets_ingested_total",
			Help: "Total number of packets accepted by the timeline",
		}),
		PacketsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_packets_rejected_total",
			Help: "Total number of packets rejected for an invalid timestamp",
		}),
		PacketsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_packets_evicted_total",
			Help: "Total number of packets evicted by buffer-size enforcement",
		}),
		PacketsBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timeline_packets_buffered",
			Help: "Number of packets currently buffered",
		}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_anomalies_detected_total",
			Help: "Total number of traffic anomalies raised",
		}, []string{"severity"}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_persistence_failures_total",
			Help: "Total number of failed persistence operations",
		}, []string{"op"}),
		CleanupRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeline_cleanup_runs_total",
			Help: "Total number of periodic retention cleanups",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.PacketsIngested,
			m.PacketsRejected,
			m.PacketsEvicted,
			m.PacketsBuffered,
			m.AnomaliesDetected,
			m.PersistenceFailures,
			m.CleanupRuns,
		)
	}
	return m
}

func (m *Metrics) Ingested() {
	if m != nil {
		m.PacketsIngested.Inc()
	}
}

func (m *Metrics) Rejected() {
	if m != nil {
		m.PacketsRejected.Inc()
	}
}

func (m *Metrics) Evicted(n int) {
	if m != nil && n > 0 {
		m.PacketsEvicted.Add(float64(n))
	}
}

func (m *Metrics) Buffered(n int) {
	if m != nil {
		m.PacketsBuffered.Set(float64(n))
	}
}

func (m *Metrics) Anomaly(severity string) {
	if m != nil {
		m.AnomaliesDetected.WithLabelValues(severity).Inc()
	}
}

func (m *Metrics) PersistFailed(op string) {
	if m != nil {
		m.PersistenceFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Cleanup() {
	if m != nil {
		m.CleanupRuns.Inc()
	}
}
