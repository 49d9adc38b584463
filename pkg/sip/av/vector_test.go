package av

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDigest(t *testing.T) {
	var v Vector
	require.NoError(t, json.Unmarshal([]byte(`{"digest":{"ha1":"abc","qop":"auth"}}`), &v))

	assert.Equal(t, KindDigest, v.Kind())
	d, ok := v.Digest()
	require.True(t, ok)
	assert.Equal(t, "abc", d.HA1)
	assert.Equal(t, "auth", d.QoP)

	_, ok = v.AKA()
	assert.False(t, ok)
}

func TestDecodeAKA(t *testing.T) {
	var v Vector
	require.NoError(t, json.Unmarshal([]byte(
		`{"aka":{"challenge":"c","response":"r","cryptkey":"ck","integritykey":"ik"}}`), &v))

	assert.Equal(t, KindAKA, v.Kind())
	a, ok := v.AKA()
	require.True(t, ok)
	assert.Equal(t, AKA{Challenge: "c", Response: "r", CryptKey: "ck", IntegrityKey: "ik"}, a)

	_, ok = v.Digest()
	assert.False(t, ok)
}

func TestDecodeRejectsAmbiguousVectors(t *testing.T) {
	for name, doc := range map[string]string{
		"Neither":       `{}`,
		"Both":          `{"digest":{"ha1":"h"},"aka":{"challenge":"c","response":"r"}}`,
		"DigestNoHA1":   `{"digest":{"qop":"auth"}}`,
		"AKANoResponse": `{"aka":{"challenge":"c"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			var v Vector
			err := json.Unmarshal([]byte(doc), &v)
			assert.True(t, errors.Is(err, ErrInvalidVector), "got %v", err)
		})
	}
}

func TestEncodeKeepsVariant(t *testing.T) {
	data, err := json.Marshal(NewAKA(AKA{Challenge: "c", Response: "r"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"aka":{"challenge":"c","response":"r","cryptkey":"","integritykey":""}}`, string(data))

	var zero Vector
	_, err = json.Marshal(&zero)
	assert.Error(t, err)
}
