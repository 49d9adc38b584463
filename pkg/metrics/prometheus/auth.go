// Package prometheus implements the metrics interfaces with
// prometheus/client_golang. Import it for its side effect:
//
//	import _ "github.com/marmos91/sipauth/pkg/metrics/prometheus"
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/sipauth/pkg/metrics"
)

func init() {
	metrics.RegisterAuthMetricsConstructor(func() metrics.AuthMetrics {
		return NewAuthMetrics()
	})
}

// authMetrics is the Prometheus implementation of metrics.AuthMetrics.
type authMetrics struct {
	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	verifications    *prometheus.CounterVec
	challenges       *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	vectorOps        *prometheus.CounterVec
}

// NewAuthMetrics creates a new Prometheus-backed AuthMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewAuthMetrics() *authMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &authMetrics{
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sipauth_decisions_total",
				Help: "Total number of authentication decisions by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		decisionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sipauth_decision_duration_milliseconds",
				Help: "Time taken to decide on a request in milliseconds",
				Buckets: []float64{
					0.1,  // 100us - pass through
					0.5,  // 500us
					1,    // 1ms - local verification
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms - credential fetch
					100,  // 100ms
					500,  // 500ms
					2000, // 2s - fetch timeout
				},
			},
			[]string{"outcome"},
		),
		verifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sipauth_verifications_total",
				Help: "Total number of digest verifications by result",
			},
			[]string{"reason"},
		),
		challenges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sipauth_challenges_total",
				Help: "Total number of challenges issued by vector kind",
			},
			[]string{"scheme"}, // "digest", "aka"
		),
		fetchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sipauth_credential_fetch_duration_milliseconds",
				Help:    "Credential source round trip time in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000},
			},
			[]string{"result"},
		),
		vectorOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sipauth_vector_operations_total",
				Help: "Total number of vector store operations by operation and result",
			},
			[]string{"op", "result"},
		),
	}
}

func (m *authMetrics) RecordDecision(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(method, outcome).Inc()
	m.decisionDuration.WithLabelValues(outcome).Observe(milliseconds(duration))
}

func (m *authMetrics) RecordVerification(reason string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(reason).Inc()
}

func (m *authMetrics) RecordChallenge(scheme string) {
	if m == nil {
		return
	}
	m.challenges.WithLabelValues(scheme).Inc()
}

func (m *authMetrics) ObserveCredentialFetch(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(result).Observe(milliseconds(duration))
}

func (m *authMetrics) RecordVectorOp(op, result string) {
	if m == nil {
		return
	}
	m.vectorOps.WithLabelValues(op, result).Inc()
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
