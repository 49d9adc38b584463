package metrics

import (
	"time"
)

// AuthMetrics provides observability for authentication decisions and the
// backends they depend on. Pass nil to disable collection.
//
// Example usage:
//
//	metrics.InitRegistry()
//	m := metrics.NewAuthMetrics()
//	engine := authn.New(authn.Options{Metrics: m, ...})
type AuthMetrics interface {
	// RecordDecision records one decision.
	//
	// Parameters:
	//   - method: SIP method (e.g., "REGISTER")
	//   - outcome: "pass_through", "challenge", "reject" or "discard"
	//   - duration: Time taken to decide
	RecordDecision(method, outcome string, duration time.Duration)

	// RecordVerification records the result of a digest verification
	// (e.g., "ok", "invalid_response", "nonce_not_found").
	RecordVerification(reason string)

	// RecordChallenge records an issued challenge by vector kind
	// ("digest" or "aka").
	RecordChallenge(scheme string)

	// ObserveCredentialFetch records a credential source round trip.
	//
	// Parameters:
	//   - result: "ok", "unknown_identity", "timeout" or "unavailable"
	//   - duration: Round trip time
	ObserveCredentialFetch(result string, duration time.Duration)

	// RecordVectorOp records a vector store operation.
	//
	// Parameters:
	//   - op: "put", "take" or "purge"
	//   - result: "ok", "miss" or "error"
	RecordVectorOp(op, result string)
}

// NewAuthMetrics creates the Prometheus-backed AuthMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or no
// implementation has been linked in.
func NewAuthMetrics() AuthMetrics {
	if !IsEnabled() || newAuthMetrics == nil {
		return nil
	}
	return newAuthMetrics()
}

// newAuthMetrics is implemented in pkg/metrics/prometheus/auth.go.
var newAuthMetrics func() AuthMetrics

// RegisterAuthMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterAuthMetricsConstructor(constructor func() AuthMetrics) {
	newAuthMetrics = constructor
}

// RecordDecision records a decision on m if m is non-nil.
func RecordDecision(m AuthMetrics, method, outcome string, duration time.Duration) {
	if m != nil {
		m.RecordDecision(method, outcome, duration)
	}
}

// RecordVerification records a verification result on m if m is non-nil.
func RecordVerification(m AuthMetrics, reason string) {
	if m != nil {
		m.RecordVerification(reason)
	}
}

// RecordChallenge records an issued challenge on m if m is non-nil.
func RecordChallenge(m AuthMetrics, scheme string) {
	if m != nil {
		m.RecordChallenge(scheme)
	}
}

// ObserveCredentialFetch records a credential fetch on m if m is non-nil.
func ObserveCredentialFetch(m AuthMetrics, result string, duration time.Duration) {
	if m != nil {
		m.ObserveCredentialFetch(result, duration)
	}
}

// RecordVectorOp records a store operation on m if m is non-nil.
func RecordVectorOp(m AuthMetrics, op, result string) {
	if m != nil {
		m.RecordVectorOp(op, result)
	}
}
