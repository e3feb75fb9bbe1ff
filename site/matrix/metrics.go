package matrix

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for outgoing Matrix requests. A nil
// *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	decodeFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_requests_total",
				Help: "Total number of requests sent to the Matrix API",
			},
			[]string{"endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matrix_request_duration_seconds",
				Help:    "Matrix API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		decodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_envelope_decode_failures_total",
				Help: "Encoded response envelopes that could not be opened",
			},
			[]string{"endpoint"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.decodeFailures)
	}
	return m
}

func (m *Metrics) observe(endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, status).Inc()
	m.duration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) decodeFailed(endpoint string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(endpoint).Inc()
}
