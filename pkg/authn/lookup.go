package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/metrics"
	"github.com/marmos91/sipauth/pkg/sip/digest"
)

// Lookup resolves the credential for a presented nonce by taking its vector
// out of the store. A nonce verifies at most once, whatever the result of
// the comparison that follows.
type Lookup struct {
	store   avstore.Store
	metrics metrics.AuthMetrics
}

var _ digest.CredentialLookup = (*Lookup)(nil)

// NewLookup returns a lookup over store. m may be nil.
func NewLookup(store avstore.Store, m metrics.AuthMetrics) *Lookup {
	return &Lookup{store: store, metrics: m}
}

// Credential implements digest.CredentialLookup.
func (l *Lookup) Credential(ctx context.Context, account, _, nonce string) (digest.Credential, error) {
	v, err := l.store.Take(ctx, account, nonce)
	if err != nil {
		if errors.Is(err, avstore.ErrNotFound) {
			metrics.RecordVectorOp(l.metrics, "take", "miss")
			logger.DebugCtx(ctx, "No outstanding vector for nonce", logger.Nonce(nonce))
			return digest.Credential{}, digest.ErrCredentialNotFound
		}
		metrics.RecordVectorOp(l.metrics, "take", "error")
		return digest.Credential{}, fmt.Errorf("failed to take vector: %w", err)
	}
	metrics.RecordVectorOp(l.metrics, "take", "ok")

	if a, ok := v.AKA(); ok {
		return digest.Credential{Kind: digest.PlainPassword, Data: a.Response}, nil
	}
	d, _ := v.Digest()
	return digest.Credential{Kind: digest.HA1, Data: d.HA1}, nil
}
