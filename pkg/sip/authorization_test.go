package sip

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthorization(t *testing.T) {
	t.Run("DigestWithQoP", func(t *testing.T) {
		a, err := ParseAuthorization(`Digest username="alice@example.com", realm="example.com", ` +
			`nonce="4b1e", uri="sip:example.com", response="6629fae49393a05397450978507c4ef1", ` +
			`algorithm=MD5, qop=auth, nc=00000001, cnonce="0a4f113b", opaque="5ccc"`)
		require.NoError(t, err)

		assert.Equal(t, "Digest", a.Scheme)
		assert.Equal(t, "alice@example.com", a.Username)
		assert.Equal(t, "example.com", a.Realm)
		assert.Equal(t, "4b1e", a.Nonce)
		assert.Equal(t, "sip:example.com", a.URI)
		assert.Equal(t, "6629fae49393a05397450978507c4ef1", a.Response)
		assert.Equal(t, "MD5", a.Algorithm)
		assert.Equal(t, "auth", a.QoP)
		assert.Equal(t, "00000001", a.NC)
		assert.Equal(t, "0a4f113b", a.CNonce)
		assert.Equal(t, "5ccc", a.Opaque)
		assert.True(t, a.HasResponse())
	})

	t.Run("CommaInsideQuotes", func(t *testing.T) {
		a, err := ParseAuthorization(`Digest username="a,b", realm="r"`)
		require.NoError(t, err)
		assert.Equal(t, "a,b", a.Username)
		assert.Equal(t, "r", a.Realm)
	})

	t.Run("EscapedQuote", func(t *testing.T) {
		a, err := ParseAuthorization(`Digest username="say \"hi\"", realm="r"`)
		require.NoError(t, err)
		assert.Equal(t, `say "hi"`, a.Username)
	})

	t.Run("ParameterNamesAreCaseInsensitive", func(t *testing.T) {
		a, err := ParseAuthorization(`Digest UserName="bob", Integrity-Protected=yes`)
		require.NoError(t, err)
		assert.Equal(t, "bob", a.Username)
		assert.Equal(t, "yes", a.Param("INTEGRITY-PROTECTED"))
	})

	t.Run("EmptyResponse", func(t *testing.T) {
		a, err := ParseAuthorization(`Digest username="bob", realm="r", nonce="", response=""`)
		require.NoError(t, err)
		assert.False(t, a.HasResponse())
	})

	for name, header := range map[string]string{
		"Empty":         "",
		"NoScheme":      `username="alice"`,
		"ValuelessPair": `Digest username`,
		"Duplicate":     `Digest nonce="a", nonce="b"`,
	} {
		t.Run("Rejects"+name, func(t *testing.T) {
			_, err := ParseAuthorization(header)
			assert.True(t, errors.Is(err, ErrMalformedAuthorization), "got %v", err)
		})
	}
}

func TestIntegrityProtected(t *testing.T) {
	cases := map[string]bool{
		"yes":              true,
		"tls-yes":          true,
		"ip-assoc-yes":     true,
		"YES":              true,
		`"tls-yes"`:        true,
		"no":               false,
		"tls-pending":      false,
		"ip-assoc-pending": false,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			a, err := ParseAuthorization(`Digest username="bob", integrity-protected=` + value)
			require.NoError(t, err)
			assert.Equal(t, want, a.IntegrityProtected())
		})
	}

	t.Run("Absent", func(t *testing.T) {
		a, err := ParseAuthorization(`Digest username="bob"`)
		require.NoError(t, err)
		assert.False(t, a.IntegrityProtected())
	})

	t.Run("NilHeader", func(t *testing.T) {
		var a *Authorization
		assert.False(t, a.IntegrityProtected())
		assert.Empty(t, a.ResyncToken())
	})
}

func TestResyncToken(t *testing.T) {
	a, err := ParseAuthorization(`Digest username="bob", auts="AUTS-TOKEN"`)
	require.NoError(t, err)
	assert.Equal(t, "AUTS-TOKEN", a.ResyncToken())

	a, err = ParseAuthorization(`Digest username="bob", autn="AUTN-TOKEN"`)
	require.NoError(t, err)
	assert.Equal(t, "AUTN-TOKEN", a.ResyncToken())

	a, err = ParseAuthorization(`Digest username="bob", auts="S", autn="N"`)
	require.NoError(t, err)
	assert.Equal(t, "S", a.ResyncToken())
}

func TestAuthorizationString(t *testing.T) {
	a, err := ParseAuthorization(`Digest username="bob", qop=auth, nc=00000001, realm="r"`)
	require.NoError(t, err)

	assert.Equal(t, `Digest nc=00000001, qop=auth, realm="r", username="bob"`, a.String())

	again, err := ParseAuthorization(a.String())
	require.NoError(t, err)
	assert.Equal(t, a.Params, again.Params)
}

func TestRequestJSON(t *testing.T) {
	body := `{
		"method": "REGISTER",
		"from": "<sip:alice@example.com>;tag=1",
		"to": "<sip:alice@example.com>",
		"call_id": "abc@host",
		"authorization": "Digest username=\"alice@example.com\", nonce=\"n1\", response=\"r1\""
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, REGISTER, req.Method)
	require.True(t, req.HasAuthorization())
	assert.Equal(t, "alice@example.com", req.Username())
	assert.Equal(t, "n1", req.Authorization.Nonce)

	var bare Request
	require.NoError(t, json.Unmarshal([]byte(`{"method":"REGISTER","to":"sip:bob@example.com"}`), &bare))
	assert.False(t, bare.HasAuthorization())
	assert.Empty(t, bare.Username())

	var bad Request
	assert.Error(t, json.Unmarshal([]byte(`{"authorization":"username=alice"}`), &bad))
}
