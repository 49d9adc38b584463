package authn

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/avstore/memory"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/marmos91/sipauth/pkg/sip"
	"github.com/marmos91/sipauth/pkg/sip/av"
	"github.com/marmos91/sipauth/pkg/sip/digest"
	"github.com/marmos91/sipauth/pkg/trail"
)

const (
	realm         = "example.com"
	alice         = "alice@example.com"
	alicePassword = "alice-secret"
	bob           = "bob@example.com"
	bobPassword   = "bob-secret"
	carol         = "carol@example.com"
	carolRAND     = "Y2Fyb2wtcmFuZC1hdXRuLTAxMjM0NTY3ODk="
	carolXRES     = "c4r01x7e5"
)

type harness struct {
	engine    *Engine
	store     *memory.Store
	source    *recordingSource
	trail     *recordingTrail
	analytics *recordingAnalytics
	metrics   *countingMetrics
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	static, err := hss.NewStaticSource(realm, []hss.Subscriber{
		{IMPI: alice, Password: alicePassword, QoP: sip.QoPAuth},
		{IMPI: bob, Password: bobPassword},
		{IMPI: carol, AKA: &av.AKA{Challenge: carolRAND, Response: carolXRES, CryptKey: "0a1b2c3d", IntegrityKey: "4e5f6a7b"}},
	})
	require.NoError(t, err)

	h := &harness{
		store:     memory.New(avstore.Options{}, time.Minute),
		source:    &recordingSource{next: static},
		trail:     &recordingTrail{},
		analytics: &recordingAnalytics{},
		metrics:   newCountingMetrics(),
	}
	t.Cleanup(func() { h.store.Close() })

	opts := Options{
		Realm:     realm,
		Store:     h.store,
		Source:    h.source,
		Trail:     h.trail,
		Analytics: h.analytics,
		Metrics:   h.metrics,
	}
	for _, m := range mutate {
		m(&opts)
	}

	h.engine, err = New(opts)
	require.NoError(t, err)
	return h
}

func allMethods(o *Options) { o.AuthenticateAllMethods = true }

func register(user string) *sip.Request {
	return &sip.Request{
		Method:     sip.REGISTER,
		RequestURI: "sip:" + realm,
		From:       "<sip:" + user + ">;tag=1928301774",
		To:         "<sip:" + user + ">",
		CallID:     "a84b4c76e66710@pc33." + realm,
		TraceID:    "trace-1",
	}
}

func withAuthorization(t *testing.T, req *sip.Request, header string) *sip.Request {
	t.Helper()
	a, err := sip.ParseAuthorization(header)
	require.NoError(t, err)
	clone := *req
	clone.Authorization = a
	return &clone
}

// answer returns req carrying a correct response to ch for user/password.
func answer(t *testing.T, req *sip.Request, ch *sip.Challenge, user, password string) *sip.Request {
	t.Helper()
	ha1 := digest.ComputeHA1(user, ch.Realm, password)

	var nc, cnonce string
	if ch.QoP != "" {
		nc, cnonce = "00000001", "0a4f113b"
	}
	response := digest.ComputeResponse(ha1, ch.Nonce, nc, cnonce, ch.QoP, req.Method.String(), req.RequestURI)

	header := fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", algorithm=%s, opaque="%s"`,
		user, ch.Realm, ch.Nonce, req.RequestURI, response, ch.Algorithm, ch.Opaque)
	if ch.QoP != "" {
		header += fmt.Sprintf(`, qop=%s, nc=%s, cnonce="%s"`, ch.QoP, nc, cnonce)
	}
	return withAuthorization(t, req, header)
}

func mustChallenge(t *testing.T, d Decision) *sip.Challenge {
	t.Helper()
	require.Equal(t, Challenge, d.Outcome, "cause %s", d.Cause)
	require.Equal(t, sip.StatusUnauthorized, d.StatusCode)
	require.NotNil(t, d.Challenge)
	return d.Challenge
}

var markerSequence = []trail.Kind{trail.KindStart, trail.KindCallingDN, trail.KindCalledDN, trail.KindCallID, trail.KindEnd}

func TestRegisterWithoutAuthorizationIsChallenged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))

	assert.Equal(t, realm, ch.Realm)
	assert.Equal(t, sip.AlgorithmMD5, ch.Algorithm)
	assert.Equal(t, sip.QoPAuth, ch.QoP)
	assert.False(t, ch.Stale)

	nonce, err := hex.DecodeString(ch.Nonce)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(nonce), 16)
	assert.Len(t, ch.Opaque, 32)
	assert.NotEqual(t, ch.Nonce, ch.Opaque)

	v, err := h.store.Take(ctx, alice, ch.Nonce)
	require.NoError(t, err)
	d, ok := v.Digest()
	require.True(t, ok)
	assert.Equal(t, digest.ComputeHA1(alice, realm, alicePassword), d.HA1)

	assert.Equal(t, markerSequence, h.trail.kinds())
	assert.Empty(t, h.analytics.failures)
	assert.Equal(t, 1, h.metrics.decisions["challenge"])
}

func TestCorrectResponsePassesAndConsumesNonce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
	d := h.engine.Decide(ctx, answer(t, register(alice), ch, alice, alicePassword))

	assert.Equal(t, PassThrough, d.Outcome)
	assert.Equal(t, CauseAuthenticated, d.Cause)
	assert.Nil(t, d.Challenge)

	_, err := h.store.Take(ctx, alice, ch.Nonce)
	assert.ErrorIs(t, err, avstore.ErrNotFound)
	assert.Equal(t, 1, h.metrics.reasons["ok"])
}

func TestDigestWithoutQoP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(bob)))
	assert.Empty(t, ch.QoP)

	d := h.engine.Decide(ctx, answer(t, register(bob), ch, bob, bobPassword))
	assert.Equal(t, PassThrough, d.Outcome)
}

func TestAKAChallengeAndResponse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(carol)))
	assert.Equal(t, carolRAND, ch.Nonce)
	assert.Equal(t, sip.AlgorithmAKAv1MD5, ch.Algorithm)
	assert.Equal(t, sip.QoPAuth, ch.QoP)
	assert.Equal(t, map[string]string{sip.ParamCK: "0a1b2c3d", sip.ParamIK: "4e5f6a7b"}, ch.Params)
	assert.Contains(t, ch.Header(), `ck="0a1b2c3d", ik="4e5f6a7b"`)

	d := h.engine.Decide(ctx, answer(t, register(carol), ch, carol, carolXRES))
	assert.Equal(t, PassThrough, d.Outcome, "cause %s", d.Cause)
}

func TestWrongResponseIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
	h.trail.markers = nil

	d := h.engine.Decide(ctx, answer(t, register(alice), ch, alice, "guess"))

	assert.Equal(t, Reject, d.Outcome)
	assert.Equal(t, sip.StatusForbidden, d.StatusCode)
	assert.Equal(t, "Forbidden", d.Reason)
	assert.Equal(t, digest.ReasonInvalidResponse.String(), d.Cause)
	assert.Equal(t, []failure{{identity: alice, aor: "sip:" + alice}}, h.analytics.failures)
	assert.Equal(t, markerSequence, h.trail.kinds())

	// The nonce was consumed by the failed attempt.
	d = h.engine.Decide(ctx, answer(t, register(alice), ch, alice, alicePassword))
	assert.Equal(t, Challenge, d.Outcome)
}

func TestAnalyticsFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t)
	h.analytics.err = assert.AnError
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
	d := h.engine.Decide(ctx, answer(t, register(alice), ch, alice, "guess"))

	assert.Equal(t, Reject, d.Outcome)
	assert.Equal(t, sip.StatusForbidden, d.StatusCode)
	assert.Len(t, h.analytics.failures, 1)
}

func TestReplayedNonceIsChallengedAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
	authed := answer(t, register(alice), ch, alice, alicePassword)

	require.Equal(t, PassThrough, h.engine.Decide(ctx, authed).Outcome)

	again := mustChallenge(t, h.engine.Decide(ctx, authed))
	assert.NotEqual(t, ch.Nonce, again.Nonce)
	assert.Equal(t, 2, h.source.count())
	assert.Equal(t, 1, h.metrics.reasons[digest.ReasonNonceNotFound.String()])
	assert.Empty(t, h.analytics.failures)
}

func TestExpiredNonceIsChallengedAgain(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.VectorTTL = 30 * time.Millisecond })
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
	time.Sleep(80 * time.Millisecond)

	d := h.engine.Decide(ctx, answer(t, register(alice), ch, alice, alicePassword))
	assert.Equal(t, Challenge, d.Outcome)
}

func TestUnknownNonceIsChallenged(t *testing.T) {
	h := newHarness(t)
	forged := &sip.Challenge{Realm: realm, Nonce: "00112233445566778899aabbccddeeff", Algorithm: sip.AlgorithmMD5, QoP: sip.QoPAuth}

	d := h.engine.Decide(context.Background(), answer(t, register(alice), forged, alice, alicePassword))
	assert.Equal(t, Challenge, d.Outcome)
}

func TestForeignRealmIsChallenged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
	foreign := *ch
	foreign.Realm = "other.example.net"

	d := h.engine.Decide(ctx, answer(t, register(alice), &foreign, alice, alicePassword))
	assert.Equal(t, Challenge, d.Outcome)

	// The lookup never ran, so the original nonce is still valid.
	d = h.engine.Decide(ctx, answer(t, register(alice), ch, alice, alicePassword))
	assert.Equal(t, PassThrough, d.Outcome)
}

func TestMalformedCredentialsAreRejected(t *testing.T) {
	h := newHarness(t)
	req := withAuthorization(t, register(alice),
		`Digest username="alice@example.com", realm="example.com", nonce="n", uri="sip:example.com", response="r", algorithm=SHA-512-256`)

	d := h.engine.Decide(context.Background(), req)
	assert.Equal(t, Reject, d.Outcome)
	assert.Equal(t, sip.StatusForbidden, d.StatusCode)
	assert.Equal(t, digest.ReasonMalformed.String(), d.Cause)
}

func TestUnknownIdentityIsRejected(t *testing.T) {
	h := newHarness(t)

	d := h.engine.Decide(context.Background(), register("mallory@example.com"))

	assert.Equal(t, Reject, d.Outcome)
	assert.Equal(t, sip.StatusForbidden, d.StatusCode)
	assert.Equal(t, CauseUnknownIdentity, d.Cause)
	assert.Nil(t, d.Challenge)
	assert.Zero(t, h.store.Len())
}

func TestCredentialSourceFailureIsRejected(t *testing.T) {
	h := newHarness(t)
	h.source.err = fmt.Errorf("%w: connection refused", hss.ErrBackendUnavailable)

	d := h.engine.Decide(context.Background(), register(alice))
	assert.Equal(t, Reject, d.Outcome)
	assert.Equal(t, sip.StatusForbidden, d.StatusCode)
}

func TestStoreFailures(t *testing.T) {
	t.Run("PutFailureIsServerError", func(t *testing.T) {
		var store *faultyStore
		h := newHarness(t, func(o *Options) {
			store = &faultyStore{Store: o.Store, putErr: assert.AnError}
			o.Store = store
		})

		d := h.engine.Decide(context.Background(), register(alice))
		assert.Equal(t, Reject, d.Outcome)
		assert.Equal(t, sip.StatusServerInternalError, d.StatusCode)
		assert.Equal(t, CauseBuildFailure, d.Cause)
		assert.Equal(t, 1, h.metrics.ops["put/error"])
	})

	t.Run("TakeFailureIsRejected", func(t *testing.T) {
		var store *faultyStore
		h := newHarness(t, func(o *Options) {
			store = &faultyStore{Store: o.Store}
			o.Store = store
		})
		ctx := context.Background()

		ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
		store.takeErr = assert.AnError

		d := h.engine.Decide(ctx, answer(t, register(alice), ch, alice, alicePassword))
		assert.Equal(t, Reject, d.Outcome)
		assert.Equal(t, sip.StatusForbidden, d.StatusCode)
		assert.Equal(t, digest.ReasonBackend.String(), d.Cause)
	})
}

func TestEntropyFailureIsServerError(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Rand = errReader{} })

	d := h.engine.Decide(context.Background(), register(alice))
	assert.Equal(t, Reject, d.Outcome)
	assert.Equal(t, sip.StatusServerInternalError, d.StatusCode)
	assert.Zero(t, h.store.Len())
}

func TestNonRegisterPassesByDefault(t *testing.T) {
	h := newHarness(t)

	for _, m := range []sip.Method{sip.INVITE, sip.ACK, sip.CANCEL, sip.BYE, sip.OPTIONS} {
		req := register(alice)
		req.Method = m
		d := h.engine.Decide(context.Background(), req)
		assert.Equal(t, PassThrough, d.Outcome, "method %s", m)
		assert.Equal(t, CauseNotAuthenticated, d.Cause)
	}
	assert.Zero(t, h.source.count())
	assert.Empty(t, h.trail.kinds())
}

func TestMethodRulesWhenAuthenticatingAllMethods(t *testing.T) {
	t.Run("ACKIsDiscarded", func(t *testing.T) {
		h := newHarness(t, allMethods)
		req := register(alice)
		req.Method = sip.ACK

		d := h.engine.Decide(context.Background(), req)
		assert.Equal(t, Discard, d.Outcome)
		assert.Zero(t, d.StatusCode)
		assert.Empty(t, h.trail.kinds())
		assert.Zero(t, h.source.count())
	})

	t.Run("ACKWithBadCredentialsIsDiscarded", func(t *testing.T) {
		h := newHarness(t, allMethods)
		ctx := context.Background()
		ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))

		req := register(alice)
		req.Method = sip.ACK
		d := h.engine.Decide(ctx, answer(t, req, ch, alice, "guess"))
		assert.Equal(t, Discard, d.Outcome)
		assert.Empty(t, h.analytics.failures)
	})

	t.Run("CANCELIsForbidden", func(t *testing.T) {
		h := newHarness(t, allMethods)
		req := register(alice)
		req.Method = sip.CANCEL

		d := h.engine.Decide(context.Background(), req)
		assert.Equal(t, Reject, d.Outcome)
		assert.Equal(t, sip.StatusForbidden, d.StatusCode)
		assert.Equal(t, CauseUnchallengeable, d.Cause)
		assert.Equal(t, markerSequence, h.trail.kinds())
		assert.Zero(t, h.source.count())
	})

	t.Run("OthersAreChallenged", func(t *testing.T) {
		h := newHarness(t, allMethods)
		for _, m := range []sip.Method{sip.INVITE, sip.BYE, sip.SUBSCRIBE, sip.MESSAGE} {
			req := register(alice)
			req.Method = m
			mustChallenge(t, h.engine.Decide(context.Background(), req))
		}
	})

	t.Run("InviteVerifiesAgainstItsOwnMethod", func(t *testing.T) {
		h := newHarness(t, allMethods)
		ctx := context.Background()
		req := register(alice)
		req.Method = sip.INVITE

		ch := mustChallenge(t, h.engine.Decide(ctx, req))
		assert.Equal(t, PassThrough, h.engine.Decide(ctx, answer(t, req, ch, alice, alicePassword)).Outcome)
	})
}

func TestUnparseableAuthorization(t *testing.T) {
	cause := sip.ErrMalformedAuthorization

	t.Run("RegisterIsForbidden", func(t *testing.T) {
		h := newHarness(t)
		d := h.engine.DecideMalformed(context.Background(), register(alice), cause)

		assert.Equal(t, Reject, d.Outcome)
		assert.Equal(t, sip.StatusForbidden, d.StatusCode)
		assert.Equal(t, digest.ReasonMalformed.String(), d.Cause)
		assert.Equal(t, []failure{{identity: alice, aor: "sip:" + alice}}, h.analytics.failures)
		assert.Equal(t, markerSequence, h.trail.kinds())
		assert.Zero(t, h.source.count())
	})

	t.Run("UnauthenticatedMethodPasses", func(t *testing.T) {
		h := newHarness(t)
		req := register(alice)
		req.Method = sip.INVITE

		d := h.engine.DecideMalformed(context.Background(), req, cause)
		assert.Equal(t, PassThrough, d.Outcome)
		assert.Empty(t, h.analytics.failures)
	})

	t.Run("ACKIsDiscarded", func(t *testing.T) {
		h := newHarness(t, allMethods)
		req := register(alice)
		req.Method = sip.ACK

		d := h.engine.DecideMalformed(context.Background(), req, cause)
		assert.Equal(t, Discard, d.Outcome)
		assert.Empty(t, h.trail.kinds())
	})
}

func TestIntegrityProtectedBypassesVerification(t *testing.T) {
	for _, value := range []string{"yes", "tls-yes", "ip-assoc-yes", "YES", "Tls-Yes"} {
		t.Run(value, func(t *testing.T) {
			h := newHarness(t)
			req := withAuthorization(t, register(alice), fmt.Sprintf(
				`Digest username="alice@example.com", realm="example.com", nonce="", uri="sip:example.com", response="deadbeef", integrity-protected="%s"`, value))

			d := h.engine.Decide(context.Background(), req)
			assert.Equal(t, PassThrough, d.Outcome)
			assert.Equal(t, CauseIntegrityProtected, d.Cause)
			assert.Zero(t, h.source.count())
		})
	}

	t.Run("NotProtected", func(t *testing.T) {
		h := newHarness(t)
		req := withAuthorization(t, register(alice),
			`Digest username="alice@example.com", realm="example.com", nonce="", uri="sip:example.com", response="", integrity-protected="no"`)

		mustChallenge(t, h.engine.Decide(context.Background(), req))
	})
}

func TestResyncTokenIsForwarded(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"AUTS", `Digest username="carol@example.com", realm="example.com", nonce="old", uri="sip:example.com", response="", auts="auts-token", autn="autn-token"`, "auts-token"},
		{"AUTNFallback", `Digest username="carol@example.com", realm="example.com", nonce="old", uri="sip:example.com", response="", autn="autn-token"`, "autn-token"},
		{"Absent", `Digest username="carol@example.com", realm="example.com", nonce="old", uri="sip:example.com", response=""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			mustChallenge(t, h.engine.Decide(context.Background(), withAuthorization(t, register(carol), tt.header)))

			got := h.source.last()
			assert.Equal(t, tt.want, got.ResyncToken)
			assert.Equal(t, carol, got.PrivateID)
			assert.Equal(t, "sip:"+carol, got.PublicID)
			assert.Equal(t, "trace-1", got.TraceID)
		})
	}
}

func TestDefaultPrivateIdentityIsStable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := register(alice)
	req.To = `"Alice" <sip:alice@example.com:5060;transport=tcp>`

	mustChallenge(t, h.engine.Decide(ctx, req))
	first := h.source.last().PrivateID
	mustChallenge(t, h.engine.Decide(ctx, req))

	assert.Equal(t, alice, first)
	assert.Equal(t, first, h.source.last().PrivateID)
}

func TestUsernameOverridesDerivedIdentity(t *testing.T) {
	h := newHarness(t)
	req := withAuthorization(t, register(alice),
		`Digest username="bob@example.com", realm="example.com", nonce="", uri="sip:example.com", response=""`)

	mustChallenge(t, h.engine.Decide(context.Background(), req))
	assert.Equal(t, bob, h.source.last().PrivateID)
}

func TestConcurrentAnswersVerifyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := mustChallenge(t, h.engine.Decide(ctx, register(alice)))
	authed := answer(t, register(alice), ch, alice, alicePassword)

	const racers = 8
	outcomes := make([]Outcome, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = h.engine.Decide(ctx, authed).Outcome
		}(i)
	}
	wg.Wait()

	passed := 0
	for _, o := range outcomes {
		if o == PassThrough {
			passed++
		} else {
			assert.Equal(t, Challenge, o)
		}
	}
	assert.Equal(t, 1, passed)
}

func TestNew(t *testing.T) {
	source, err := hss.NewStaticSource(realm, nil)
	require.NoError(t, err)
	store := memory.New(avstore.Options{}, time.Minute)
	defer store.Close()

	_, err = New(Options{Source: source})
	assert.Error(t, err)
	_, err = New(Options{Store: store})
	assert.Error(t, err)

	e, err := New(Options{Store: store, Source: source})
	require.NoError(t, err)
	host, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, host, e.Realm())
	assert.Equal(t, DefaultVectorTTL, e.Builder().ttl)
}

func TestDecisionJSON(t *testing.T) {
	data, err := json.Marshal(challenge(&sip.Challenge{Realm: realm, Nonce: "n", Algorithm: sip.AlgorithmMD5}))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "challenge", got["outcome"])
	assert.EqualValues(t, 401, got["status_code"])
	assert.Equal(t, "Unauthorized", got["reason"])
	assert.NotContains(t, got, "Cause")

	var o Outcome
	require.NoError(t, o.UnmarshalText([]byte("discard")))
	assert.Equal(t, Discard, o)
	assert.Error(t, o.UnmarshalText([]byte("maybe")))
}
