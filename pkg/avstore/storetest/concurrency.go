package storetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/marmos91/sipauth/pkg/avstore"
)

const racers = 16

func runConcurrencyTests(t *testing.T, factory StoreFactory) {
	t.Run("RacingTakesYieldOneHit", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		mustPut(t, store, alice, "contended", digestVector("x"))

		var hits atomic.Int32
		errs := make(chan error, racers)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := store.Take(t.Context(), alice, "contended")
				switch {
				case err == nil:
					hits.Add(1)
				case !errors.Is(err, avstore.ErrNotFound):
					errs <- err
				}
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("Take failed: %v", err)
		}
		if got := hits.Load(); got != 1 {
			t.Fatalf("%d takes succeeded, want exactly 1", got)
		}
	})

	t.Run("ParallelIdentities", func(t *testing.T) {
		store := factory(t, avstore.Options{})
		ctx := t.Context()

		var wg sync.WaitGroup
		errs := make(chan error, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				impi := fmt.Sprintf("user%d@example.com", i)
				if err := store.Put(ctx, impi, "n", digestVector(impi), ttl); err != nil {
					errs <- err
					return
				}
				v, err := store.Take(ctx, impi, "n")
				if err != nil {
					errs <- err
					return
				}
				if d, _ := v.Digest(); d.HA1 != impi {
					errs <- fmt.Errorf("%s got vector of %s", impi, d.HA1)
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("%v", err)
		}
	})
}
