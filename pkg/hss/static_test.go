package hss

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/sipauth/pkg/sip/av"
	"github.com/marmos91/sipauth/pkg/sip/digest"
)

func TestStaticSource(t *testing.T) {
	src, err := NewStaticSource("example.com", []Subscriber{
		{IMPI: "alice@example.com", Password: "secret", QoP: "auth"},
		{IMPI: "bob@example.com", HA1: "0123456789abcdef0123456789abcdef"},
		{IMPI: "carol@example.com", AKA: &av.AKA{Challenge: "rand-autn", Response: "xres", CryptKey: "ck", IntegrityKey: "ik"}},
	})
	require.NoError(t, err)
	ctx := context.Background()

	v, err := src.Fetch(ctx, FetchRequest{PrivateID: "alice@example.com"})
	require.NoError(t, err)
	d, ok := v.Digest()
	require.True(t, ok)
	assert.Equal(t, digest.ComputeHA1("alice@example.com", "example.com", "secret"), d.HA1)
	assert.Equal(t, "auth", d.QoP)

	v, err = src.Fetch(ctx, FetchRequest{PrivateID: "bob@example.com"})
	require.NoError(t, err)
	d, _ = v.Digest()
	assert.Equal(t, "0123456789abcdef0123456789abcdef", d.HA1)

	v, err = src.Fetch(ctx, FetchRequest{PrivateID: "carol@example.com"})
	require.NoError(t, err)
	assert.Equal(t, av.KindAKA, v.Kind())

	_, err = src.Fetch(ctx, FetchRequest{PrivateID: "mallory@example.com"})
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestStaticSourceRejectsAmbiguousSubscribers(t *testing.T) {
	_, err := NewStaticSource("example.com", []Subscriber{{IMPI: "alice@example.com"}})
	assert.Error(t, err)

	_, err = NewStaticSource("example.com", []Subscriber{{IMPI: "alice@example.com", Password: "p", HA1: "h"}})
	assert.Error(t, err)

	_, err = NewStaticSource("example.com", []Subscriber{{Password: "p"}})
	assert.Error(t, err)

	_, err = NewStaticSource("example.com", []Subscriber{{IMPI: "carol@example.com", AKA: &av.AKA{Challenge: "c"}}})
	assert.ErrorIs(t, err, av.ErrInvalidVector)
}

func TestStaticSourceCancelledContext(t *testing.T) {
	src, err := NewStaticSource("example.com", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx, FetchRequest{PrivateID: "alice@example.com"})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
