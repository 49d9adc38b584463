// Package hss fetches authentication vectors from the subscriber credential
// source (an HSS-style identity service).
package hss

import (
	"context"
	"errors"

	"github.com/marmos91/sipauth/pkg/sip/av"
)

var (
	// ErrUnknownIdentity is returned when the source has no subscriber for
	// the private identity.
	ErrUnknownIdentity = errors.New("hss: unknown identity")

	// ErrBackendUnavailable is returned on timeouts, transport failures and
	// unusable responses.
	ErrBackendUnavailable = errors.New("hss: backend unavailable")
)

// FetchRequest identifies the vector to fetch.
type FetchRequest struct {
	PrivateID string
	PublicID  string

	// ResyncToken is the AKA resynchronization token, empty when the client
	// sent none.
	ResyncToken string

	// TraceID is the SIP trace identifier forwarded to the source.
	TraceID string
}

// Source produces a fresh vector per call. Implementations must be safe for
// concurrent use.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) (*av.Vector, error)
}
