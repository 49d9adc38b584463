// Package avstore caches authentication vectors between the challenge that
// issues them and the single verification that consumes them.
//
// Every backend guarantees:
//   - Take is atomic: of any number of concurrent Takes for one key, at most
//     one returns the vector.
//   - An entry is never returned after its TTL elapsed.
//   - Entries are keyed by (private identity, nonce).
package avstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/sipauth/pkg/sip/av"
)

// ErrNotFound is returned by Take when no live vector exists for the key:
// it was never stored, was already taken, or expired.
var ErrNotFound = errors.New("avstore: vector not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("avstore: store closed")

// ErrInvalidEntry is returned by Put for an empty key part, a non-positive
// TTL or an invalid vector.
var ErrInvalidEntry = errors.New("avstore: invalid entry")

// Options are the behaviour knobs shared by all backends.
type Options struct {
	// MaxPerIdentity caps the outstanding vectors of one private identity.
	// A Put beyond the cap evicts the oldest entry of that identity.
	// Zero disables the cap.
	MaxPerIdentity int
}

// Store is a short-lived vector cache shared by all request handlers.
type Store interface {
	// Put stores v under (impi, nonce) for ttl, replacing any existing entry.
	Put(ctx context.Context, impi, nonce string, v *av.Vector, ttl time.Duration) error

	// Take returns the vector stored under (impi, nonce) and removes it.
	Take(ctx context.Context, impi, nonce string) (*av.Vector, error)

	// Purge removes every outstanding vector of impi and returns how many.
	Purge(ctx context.Context, impi string) (int, error)

	// Healthcheck reports whether the backend can serve requests.
	Healthcheck(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// CheckPut validates the arguments of a Put.
func CheckPut(impi, nonce string, v *av.Vector, ttl time.Duration) error {
	switch {
	case impi == "":
		return fmt.Errorf("%w: empty private identity", ErrInvalidEntry)
	case nonce == "":
		return fmt.Errorf("%w: empty nonce", ErrInvalidEntry)
	case ttl <= 0:
		return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidEntry, ttl)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	return nil
}

// Key separator. Neither identities nor nonces contain a backslash in
// practice; Key escapes it anyway so distinct pairs never collide.
const keySep = `\`

// Table is the namespace all vector keys live under.
const Table = "av"

// Key returns the fully qualified key of (impi, nonce): av\<impi>\<nonce>.
func Key(impi, nonce string) string {
	return IdentityPrefix(impi) + escape(nonce)
}

// IdentityPrefix returns the key prefix shared by all vectors of impi.
func IdentityPrefix(impi string) string {
	return Table + keySep + escape(impi) + keySep
}

func escape(s string) string {
	if !strings.ContainsAny(s, `\%`) {
		return s
	}
	s = strings.ReplaceAll(s, `%`, `%25`)
	return strings.ReplaceAll(s, `\`, `%5C`)
}
