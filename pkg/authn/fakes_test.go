package authn

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/marmos91/sipauth/pkg/sip/av"
	"github.com/marmos91/sipauth/pkg/trail"
)

// recordingSource records fetch requests and delegates to a static source.
type recordingSource struct {
	mu       sync.Mutex
	requests []hss.FetchRequest
	next     hss.Source
	err      error
}

func (s *recordingSource) Fetch(ctx context.Context, req hss.FetchRequest) (*av.Vector, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.next.Fetch(ctx, req)
}

func (s *recordingSource) last() hss.FetchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return hss.FetchRequest{}
	}
	return s.requests[len(s.requests)-1]
}

func (s *recordingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// faultyStore wraps a store and fails selected operations.
type faultyStore struct {
	avstore.Store
	putErr  error
	takeErr error
}

func (s *faultyStore) Put(ctx context.Context, impi, nonce string, v *av.Vector, ttl time.Duration) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, impi, nonce, v, ttl)
}

func (s *faultyStore) Take(ctx context.Context, impi, nonce string) (*av.Vector, error) {
	if s.takeErr != nil {
		return nil, s.takeErr
	}
	return s.Store.Take(ctx, impi, nonce)
}

type recordingTrail struct {
	mu      sync.Mutex
	markers []trail.Marker
}

func (r *recordingTrail) Report(_ context.Context, _ string, m trail.Marker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers = append(r.markers, m)
	return nil
}

func (r *recordingTrail) kinds() []trail.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]trail.Kind, 0, len(r.markers))
	for _, m := range r.markers {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}

type failure struct {
	identity string
	aor      string
}

type recordingAnalytics struct {
	mu       sync.Mutex
	failures []failure
	err      error
}

func (r *recordingAnalytics) ReportAuthFailure(_ context.Context, identity, aor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure{identity: identity, aor: aor})
	return r.err
}

// errReader always fails.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, context.DeadlineExceeded }

type countingMetrics struct {
	mu        sync.Mutex
	decisions map[string]int
	reasons   map[string]int
	ops       map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{decisions: map[string]int{}, reasons: map[string]int{}, ops: map[string]int{}}
}

func (m *countingMetrics) RecordDecision(_, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[outcome]++
}

func (m *countingMetrics) RecordVerification(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reasons[reason]++
}

func (m *countingMetrics) RecordChallenge(string) {}

func (m *countingMetrics) ObserveCredentialFetch(string, time.Duration) {}

func (m *countingMetrics) RecordVectorOp(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op+"/"+result]++
}

// sourceFunc serves whatever vector the function returns.
type sourceFunc func() *av.Vector

func (f sourceFunc) Fetch(context.Context, hss.FetchRequest) (*av.Vector, error) {
	return f(), nil
}
