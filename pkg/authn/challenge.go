package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/internal/telemetry"
	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/hss"
	"github.com/marmos91/sipauth/pkg/metrics"
	"github.com/marmos91/sipauth/pkg/sip"
)

// ErrNoVector is returned by Build when the credential source produced no
// vector. Challenging without one is pointless.
var ErrNoVector = errors.New("authn: no authentication vector")

// nonceBytes is the entropy of generated Digest nonces and opaque values.
const nonceBytes = 16

// ChallengeBuilder fetches a vector, stores it under a fresh nonce and
// returns the matching challenge.
type ChallengeBuilder struct {
	realm   string
	ttl     time.Duration
	store   avstore.Store
	source  hss.Source
	metrics metrics.AuthMetrics
	rand    io.Reader
}

// Build issues a challenge for req. It returns ErrNoVector (wrapped) when no
// vector could be fetched and any other error when the challenge could not
// be committed.
func (b *ChallengeBuilder) Build(ctx context.Context, req *sip.Request) (*sip.Challenge, error) {
	impi := PrivateIdentity(req)
	fetch := hss.FetchRequest{
		PrivateID:   impi,
		PublicID:    sip.PublicIdentity(req.To),
		ResyncToken: req.ResyncToken(),
		TraceID:     req.TraceID,
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanChallenge)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.IMPI(impi), telemetry.IMPU(fetch.PublicID), telemetry.AuthResync(fetch.ResyncToken != ""))

	v, err := b.source.Fetch(ctx, fetch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoVector, err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoVector, err)
	}

	opaque, err := b.randomHex()
	if err != nil {
		return nil, fmt.Errorf("failed to generate opaque: %w", err)
	}

	ch := &sip.Challenge{Realm: b.realm, Opaque: opaque}
	if a, ok := v.AKA(); ok {
		ch.Nonce = a.Challenge
		ch.Algorithm = sip.AlgorithmAKAv1MD5
		ch.QoP = sip.QoPAuth
		ch.Params = map[string]string{
			sip.ParamCK: a.CryptKey,
			sip.ParamIK: a.IntegrityKey,
		}
	} else {
		d, _ := v.Digest()
		if ch.Nonce, err = b.randomHex(); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
		ch.Algorithm = sip.AlgorithmMD5
		ch.QoP = d.QoP
	}

	if err := b.store.Put(ctx, impi, ch.Nonce, v, b.ttl); err != nil {
		metrics.RecordVectorOp(b.metrics, "put", "error")
		return nil, fmt.Errorf("failed to store vector: %w", err)
	}
	metrics.RecordVectorOp(b.metrics, "put", "ok")
	metrics.RecordChallenge(b.metrics, string(v.Kind()))
	telemetry.SetAttributes(ctx, telemetry.AuthScheme(string(v.Kind())))

	logger.DebugCtx(ctx, "Challenge issued",
		logger.Nonce(ch.Nonce),
		logger.KeyScheme, string(v.Kind()),
		logger.KeyResync, fetch.ResyncToken != "")
	return ch, nil
}

func (b *ChallengeBuilder) randomHex() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := io.ReadFull(b.rand, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// PrivateIdentity returns the identity a request authenticates as: the
// Authorization username, or the identity derived from the To header by
// sip.DefaultPrivateIdentity.
func PrivateIdentity(req *sip.Request) string {
	if u := req.Username(); u != "" {
		return u
	}
	return sip.DefaultPrivateIdentity(req.To)
}

func defaultRand(r io.Reader) io.Reader {
	if r == nil {
		return rand.Reader
	}
	return r
}
