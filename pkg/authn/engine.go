// Package authn decides, per inbound SIP request, whether it passes, is
// challenged, rejected or discarded, applying Digest (RFC 3261) and
// 3GPP AKA (RFC 3310) authentication to registrations.
//
// An Engine wires three parts together:
//   - the digest.Verifier, checking a presented response
//   - the Lookup, consuming the vector issued with the presented nonce
//   - the ChallengeBuilder, fetching and storing a vector for a new challenge
package authn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/internal/telemetry"
	"github.com/marmos91/sipauth/pkg/analytics"
	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/marmos91/sipauth/pkg/metrics"
	"github.com/marmos91/sipauth/pkg/sip"
	"github.com/marmos91/sipauth/pkg/sip/digest"
	"github.com/marmos91/sipauth/pkg/trail"
)

// DefaultVectorTTL bounds how long an unanswered challenge stays valid.
const DefaultVectorTTL = 30 * time.Second

// Options are the collaborators and settings of an Engine.
type Options struct {
	// Realm is the authentication realm. Empty falls back to the host name.
	Realm string

	// VectorTTL is the lifetime of a stored vector. Zero uses
	// DefaultVectorTTL.
	VectorTTL time.Duration

	// AuthenticateAllMethods applies authentication to every method instead
	// of REGISTER only.
	AuthenticateAllMethods bool

	Store  avstore.Store // required
	Source hss.Source    // required

	// Optional hooks. Nil disables them.
	Trail     trail.Reporter
	Analytics analytics.Reporter
	Metrics   metrics.AuthMetrics

	// Rand supplies nonce and opaque entropy. Nil uses crypto/rand.
	Rand io.Reader
}

// Engine is safe for concurrent use.
type Engine struct {
	realm     string
	allMethod bool
	verifier  *digest.Verifier
	builder   *ChallengeBuilder
	trail     trail.Reporter
	analytics analytics.Reporter
	metrics   metrics.AuthMetrics
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("authn: vector store is required")
	}
	if opts.Source == nil {
		return nil, errors.New("authn: credential source is required")
	}

	realm := opts.Realm
	if realm == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("authn: no realm configured and host name unavailable: %w", err)
		}
		realm = host
		logger.Info("No authentication realm configured, using host name", logger.KeyRealm, realm)
	}

	ttl := opts.VectorTTL
	if ttl <= 0 {
		ttl = DefaultVectorTTL
	}

	return &Engine{
		realm:     realm,
		allMethod: opts.AuthenticateAllMethods,
		verifier:  digest.NewVerifier(realm, NewLookup(opts.Store, opts.Metrics)),
		builder: &ChallengeBuilder{
			realm:   realm,
			ttl:     ttl,
			store:   opts.Store,
			source:  opts.Source,
			metrics: opts.Metrics,
			rand:    defaultRand(opts.Rand),
		},
		trail:     opts.Trail,
		analytics: opts.Analytics,
		metrics:   opts.Metrics,
	}, nil
}

// Realm returns the realm the engine authenticates for.
func (e *Engine) Realm() string { return e.realm }

// Builder returns the engine's challenge builder.
func (e *Engine) Builder() *ChallengeBuilder { return e.builder }

// Decide classifies req. It never fails: internal errors become Reject
// decisions.
func (e *Engine) Decide(ctx context.Context, req *sip.Request) Decision {
	start := time.Now()
	ctx, span := telemetry.StartDecideSpan(ctx, req.Method.String(), req.CallID, req.TraceID)
	defer span.End()

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(req.TraceID, req.Method.String(), req.CallID)
	} else {
		lc = lc.Clone()
		lc.TraceID, lc.Method, lc.CallID = req.TraceID, req.Method.String(), req.CallID
	}
	lc = lc.WithIMPI(PrivateIdentity(req))
	lc.SpanID = telemetry.SpanID(ctx)
	ctx = logger.WithContext(ctx, lc)

	d := e.decide(ctx, req)

	elapsed := time.Since(start)
	metrics.RecordDecision(e.metrics, req.Method.String(), d.Outcome.String(), elapsed)
	telemetry.SetAttributes(ctx, telemetry.Outcome(d.Outcome.String()), telemetry.Reason(d.Cause), telemetry.SIPStatus(d.StatusCode))

	logger.DebugCtx(ctx, "Decision",
		logger.Outcome(d.Outcome.String()),
		logger.Status(d.StatusCode),
		logger.KeyReason, d.Cause,
		logger.DurationMs(float64(elapsed.Microseconds())/1000))
	return d
}

func (e *Engine) decide(ctx context.Context, req *sip.Request) Decision {
	if req.Method != sip.REGISTER && !e.allMethod {
		return passThrough(CauseNotAuthenticated)
	}
	if req.HasAuthorization() && req.IntegrityProtected() {
		return passThrough(CauseIntegrityProtected)
	}

	res := digest.Result{Reason: digest.ReasonNoAuth, Status: sip.StatusUnauthorized}
	if req.HasAuthorization() {
		res = e.verifier.Verify(ctx, req.Method, req.Authorization)
		metrics.RecordVerification(e.metrics, res.Reason.String())
		if res.OK() {
			return passThrough(CauseAuthenticated)
		}
	}

	// ACK cannot be answered, whatever was wrong with it.
	if req.Method == sip.ACK {
		return discard(res.Reason.String())
	}

	trail.ReportRequest(ctx, e.trail, req)

	if res.NoCredentials() {
		return e.challengeOrReject(ctx, req)
	}

	logger.InfoCtx(ctx, "Authentication failed",
		logger.KeyReason, res.Reason.String(),
		logger.Err(res.Err))
	e.reportFailure(ctx, req)
	return reject(res.Status, res.Reason.String())
}

// DecideMalformed classifies a request whose Authorization header could not
// be parsed. req carries everything but the header. The method rules of
// Decide still apply; an authenticated method is otherwise rejected with 403.
func (e *Engine) DecideMalformed(ctx context.Context, req *sip.Request, cause error) Decision {
	d := e.decideMalformed(ctx, req, cause)
	metrics.RecordDecision(e.metrics, req.Method.String(), d.Outcome.String(), 0)
	return d
}

func (e *Engine) decideMalformed(ctx context.Context, req *sip.Request, cause error) Decision {
	if req.Method != sip.REGISTER && !e.allMethod {
		return passThrough(CauseNotAuthenticated)
	}
	reason := digest.ReasonMalformed.String()
	metrics.RecordVerification(e.metrics, reason)
	if req.Method == sip.ACK {
		return discard(reason)
	}

	trail.ReportRequest(ctx, e.trail, req)
	logger.InfoCtx(ctx, "Unparseable Authorization header",
		logger.KeyMethod, req.Method.String(),
		logger.KeyCallID, req.CallID,
		logger.Err(cause))
	e.reportFailure(ctx, req)
	return reject(sip.StatusForbidden, reason)
}

func (e *Engine) challengeOrReject(ctx context.Context, req *sip.Request) Decision {
	if req.Method == sip.CANCEL {
		return reject(sip.StatusForbidden, CauseUnchallengeable)
	}

	ch, err := e.builder.Build(ctx, req)
	switch {
	case err == nil:
		return challenge(ch)
	case errors.Is(err, ErrNoVector):
		logger.InfoCtx(ctx, "No vector for identity, rejecting", logger.Err(err))
		return reject(sip.StatusForbidden, CauseUnknownIdentity)
	default:
		logger.ErrorCtx(ctx, "Failed to build challenge", logger.Err(err))
		telemetry.RecordError(ctx, err)
		return reject(sip.StatusServerInternalError, CauseBuildFailure)
	}
}

// reportFailure notifies analytics of a failed verification. Errors are
// logged and dropped.
func (e *Engine) reportFailure(ctx context.Context, req *sip.Request) {
	if e.analytics == nil {
		return
	}
	identity := req.Username()
	if identity == "" {
		identity = PrivateIdentity(req)
	}
	if err := e.analytics.ReportAuthFailure(ctx, identity, sip.AddressOfRecord(req.To)); err != nil {
		logger.WarnCtx(ctx, "Failed to report authentication failure", logger.Err(err))
	}
}
