package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CarrierErrors   *prometheus.CounterVec
	HandshakesTotal *prometheus.CounterVec
}

// NewMetrics creates metrics and registers them with reg. A nil reg registers with
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipperman_requests_total",
				Help: "Total number of gateway requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipperman_request_duration_seconds",
				Help:    "Gateway request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipperman_carrier_errors_total",
				Help: "Total failed gateway requests by operation and error kind",
			},
			[]string{"operation", "kind"},
		),
		HandshakesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipperman_handshakes_total",
				Help: "Shop registration handshakes by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records a failed request by error kind.
func (m *Metrics) RecordError(operation, kind string) {
	if m == nil {
		return
	}
	m.CarrierErrors.WithLabelValues(operation, kind).Inc()
}

// RecordHandshake records the outcome of a registration handshake.
func (m *Metrics) RecordHandshake(outcome string) {
	if m == nil {
		return
	}
	m.HandshakesTotal.WithLabelValues(outcome).Inc()
}
