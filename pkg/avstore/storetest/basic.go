package storetest

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/sip/av"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
	ttl   = time.Minute
)

func digestVector(ha1 string) *av.Vector {
	return av.NewDigest(av.Digest{HA1: ha1, QoP: "auth"})
}

func akaVector() *av.Vector {
	return av.NewAKA(av.AKA{
		Challenge:    "3Wv/7vkdoH5FfbvEbwPwLt47Rqgi5eiTCq1ZL+mQLk0=",
		Response:     "f19ef1e6c0b1e0ee",
		CryptKey:     "a1b2c3d4e5f60718293a4b5c6d7e8f90",
		IntegrityKey: "0f1e2d3c4b5a69788796a5b4c3d2e1f0",
	})
}

func mustPut(t *testing.T, store avstore.Store, impi, nonce string, v *av.Vector) {
	t.Helper()
	if err := store.Put(t.Context(), impi, nonce, v, ttl); err != nil {
		t.Fatalf("Put(%q, %q) failed: %v", impi, nonce, err)
	}
}

func mustTake(t *testing.T, store avstore.Store, impi, nonce string) *av.Vector {
	t.Helper()
	v, err := store.Take(t.Context(), impi, nonce)
	if err != nil {
		t.Fatalf("Take(%q, %q) failed: %v", impi, nonce, err)
	}
	return v
}

func assertGone(t *testing.T, store avstore.Store, impi, nonce string) {
	t.Helper()
	v, err := store.Take(t.Context(), impi, nonce)
	if !errors.Is(err, avstore.ErrNotFound) {
		t.Fatalf("Take(%q, %q) = %v, %v; want ErrNotFound", impi, nonce, v, err)
	}
}

func runBasicTests(t *testing.T, factory StoreFactory) {
	t.Run("DigestRoundTrip", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		mustPut(t, store, alice, "n1", digestVector("ha1-a"))

		got := mustTake(t, store, alice, "n1")
		d, ok := got.Digest()
		if !ok {
			t.Fatalf("Take returned %s vector, want digest", got.Kind())
		}
		if d.HA1 != "ha1-a" || d.QoP != "auth" {
			t.Fatalf("Take returned %+v", d)
		}
	})

	t.Run("AKARoundTrip", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		want, _ := akaVector().AKA()
		mustPut(t, store, alice, want.Challenge, akaVector())

		got := mustTake(t, store, alice, want.Challenge)
		a, ok := got.AKA()
		if !ok {
			t.Fatalf("Take returned %s vector, want aka", got.Kind())
		}
		if a != want {
			t.Fatalf("Take returned %+v, want %+v", a, want)
		}
	})

	t.Run("TakeConsumes", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		mustPut(t, store, alice, "n1", digestVector("ha1-a"))

		mustTake(t, store, alice, "n1")
		assertGone(t, store, alice, "n1")
	})

	t.Run("TakeMissing", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		assertGone(t, store, alice, "never-issued")
	})

	t.Run("PutReplaces", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		mustPut(t, store, alice, "n1", digestVector("old"))
		mustPut(t, store, alice, "n1", digestVector("new"))

		d, _ := mustTake(t, store, alice, "n1").Digest()
		if d.HA1 != "new" {
			t.Fatalf("HA1 = %q, want %q", d.HA1, "new")
		}
		assertGone(t, store, alice, "n1")
	})

	t.Run("IdentitiesAreIsolated", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		mustPut(t, store, alice, "shared", digestVector("ha1-a"))
		mustPut(t, store, bob, "shared", digestVector("ha1-b"))

		assertGone(t, store, "carol@example.com", "shared")

		d, _ := mustTake(t, store, bob, "shared").Digest()
		if d.HA1 != "ha1-b" {
			t.Fatalf("bob HA1 = %q", d.HA1)
		}
		d, _ = mustTake(t, store, alice, "shared").Digest()
		if d.HA1 != "ha1-a" {
			t.Fatalf("alice HA1 = %q", d.HA1)
		}
	})

	t.Run("PutRejectsInvalidEntries", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		ctx := t.Context()

		if err := store.Put(ctx, "", "n", digestVector("x"), ttl); !errors.Is(err, avstore.ErrInvalidEntry) {
			t.Fatalf("empty impi: err = %v", err)
		}
		if err := store.Put(ctx, alice, "n", digestVector("x"), 0); !errors.Is(err, avstore.ErrInvalidEntry) {
			t.Fatalf("zero ttl: err = %v", err)
		}
		if err := store.Put(ctx, alice, "n", av.NewDigest(av.Digest{}), ttl); !errors.Is(err, avstore.ErrInvalidEntry) {
			t.Fatalf("empty ha1: err = %v", err)
		}
		assertGone(t, store, alice, "n")
	})

	t.Run("Purge", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		mustPut(t, store, alice, "n1", digestVector("a1"))
		mustPut(t, store, alice, "n2", digestVector("a2"))
		mustPut(t, store, alice, "n3", akaVector())
		mustPut(t, store, bob, "n1", digestVector("b1"))
		mustPut(t, store, "alice@example.com.evil", "n1", digestVector("e1"))

		n, err := store.Purge(t.Context(), alice)
		if err != nil {
			t.Fatalf("Purge failed: %v", err)
		}
		if n != 3 {
			t.Fatalf("Purge removed %d vectors, want 3", n)
		}
		assertGone(t, store, alice, "n1")
		assertGone(t, store, alice, "n2")
		mustTake(t, store, bob, "n1")
		mustTake(t, store, "alice@example.com.evil", "n1")

		n, err = store.Purge(t.Context(), alice)
		if err != nil || n != 0 {
			t.Fatalf("second Purge = %d, %v; want 0, nil", n, err)
		}
	})

	t.Run("Healthcheck", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		if err := store.Healthcheck(t.Context()); err != nil {
			t.Fatalf("Healthcheck failed: %v", err)
		}
	})
}
