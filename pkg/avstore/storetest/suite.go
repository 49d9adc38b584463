package storetest

import (
	"testing"

	"github.com/marmos91/sipauth/pkg/avstore"
)

// StoreFactory creates a fresh Store instance for each test.
// The factory receives *testing.T so it can use t.TempDir() for stores
// that need filesystem paths and t.Cleanup() for teardown.
type StoreFactory func(t *testing.T, opts avstore.Options) avstore.Store

// RunConformanceSuite runs the full conformance test suite against the provided
// store factory. Each test gets a fresh store instance to ensure isolation.
//
// The suite covers three categories:
//   - Basic: put/take round trips, replacement, identity isolation, purge
//   - Expiry: TTL enforcement and the per-identity cap
//   - Concurrency: racing takes of one key
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("Basic", func(t *testing.T) {
		runBasicTests(t, factory)
	})

	t.Run("Expiry", func(t *testing.T) {
		runExpiryTests(t, factory)
	})

	t.Run("Concurrency", func(t *testing.T) {
		runConcurrencyTests(t, factory)
	})
}
