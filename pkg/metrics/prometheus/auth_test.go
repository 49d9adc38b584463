package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/sipauth/pkg/metrics"
)

func TestAuthMetrics(t *testing.T) {
	metrics.InitRegistry()

	m := NewAuthMetrics()
	require.NotNil(t, m)

	m.RecordDecision("REGISTER", "challenge", 3*time.Millisecond)
	m.RecordDecision("REGISTER", "challenge", time.Millisecond)
	m.RecordVerification("invalid_response")
	m.RecordChallenge("aka")
	m.ObserveCredentialFetch("ok", 20*time.Millisecond)
	m.RecordVectorOp("take", "miss")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("REGISTER", "challenge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("invalid_response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.challenges.WithLabelValues("aka")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.vectorOps.WithLabelValues("take", "miss")))

	expected := `
# HELP sipauth_challenges_total Total number of challenges issued by vector kind
# TYPE sipauth_challenges_total counter
sipauth_challenges_total{scheme="aka"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.GetRegistry(), strings.NewReader(expected), "sipauth_challenges_total"))
}

func TestNilReceiver(t *testing.T) {
	var m *authMetrics
	m.RecordDecision("REGISTER", "pass_through", time.Millisecond)
	m.RecordVerification("ok")
	m.RecordChallenge("digest")
	m.ObserveCredentialFetch("unavailable", time.Second)
	m.RecordVectorOp("put", "error")
}
