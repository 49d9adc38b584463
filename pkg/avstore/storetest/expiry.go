package storetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/sipauth/pkg/avstore"
)

func runExpiryTests(t *testing.T, factory StoreFactory) {
	t.Run("ExpiredEntryIsNotReturned", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		if err := store.Put(t.Context(), alice, "short", digestVector("x"), 50*time.Millisecond); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		mustPut(t, store, alice, "long", digestVector("y"))

		time.Sleep(150 * time.Millisecond)

		assertGone(t, store, alice, "short")
		mustTake(t, store, alice, "long")
	})

	t.Run("CapEvictsOldest", func(t *testing.T) {
		store := factory(t, avstore.Options{MaxPerIdentity: 2})
		for i := 1; i <= 3; i++ {
			mustPut(t, store, alice, fmt.Sprintf("n%d", i), digestVector(fmt.Sprintf("ha1-%d", i)))
			time.Sleep(2 * time.Millisecond)
		}
		mustPut(t, store, bob, "n1", digestVector("b"))

		assertGone(t, store, alice, "n1")
		mustTake(t, store, alice, "n2")
		mustTake(t, store, alice, "n3")
		mustTake(t, store, bob, "n1")
	})

	t.Run("CapCountsOnlyOutstanding", func(t *testing.T) {
		store := factory(t, avstore.Options{MaxPerIdentity: 2})
		mustPut(t, store, alice, "n1", digestVector("1"))
		time.Sleep(2 * time.Millisecond)
		mustPut(t, store, alice, "n2", digestVector("2"))
		mustTake(t, store, alice, "n1")
		time.Sleep(2 * time.Millisecond)
		mustPut(t, store, alice, "n3", digestVector("3"))

		mustTake(t, store, alice, "n2")
		mustTake(t, store, alice, "n3")
	})

	t.Run("ReplacingDoesNotEvict", func(t *testing.T) {
		store := factory(t, avstore.Options{MaxPerIdentity: 2})
		mustPut(t, store, alice, "n1", digestVector("1"))
		time.Sleep(2 * time.Millisecond)
		mustPut(t, store, alice, "n2", digestVector("2"))
		time.Sleep(2 * time.Millisecond)
		mustPut(t, store, alice, "n2", digestVector("2b"))

		mustTake(t, store, alice, "n1")
		mustTake(t, store, alice, "n2")
	})
}
