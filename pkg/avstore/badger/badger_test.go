package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/avstore/storetest"
	"github.com/marmos91/sipauth/pkg/sip/av"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T, opts avstore.Options) avstore.Store {
		store, err := New(Config{InMemory: true}, opts)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		t.Cleanup(func() {
			store.Close()
		})
		return store
	})
}

func TestVectorsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors")
	ctx := context.Background()

	store, err := New(Config{Path: path}, avstore.Options{})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "alice@example.com", "n1", av.NewDigest(av.Digest{HA1: "ha1"}), time.Minute))
	require.NoError(t, store.Close())

	store, err = New(Config{Path: path}, avstore.Options{})
	require.NoError(t, err)
	defer store.Close()

	v, err := store.Take(ctx, "alice@example.com", "n1")
	require.NoError(t, err)
	d, ok := v.Digest()
	require.True(t, ok)
	assert.Equal(t, "ha1", d.HA1)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{}, avstore.Options{})
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	store, err := New(Config{InMemory: true}, avstore.Options{})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Healthcheck(context.Background()), avstore.ErrClosed)
}
