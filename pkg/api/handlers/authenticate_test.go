package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/authn"
	"github.com/marmos91/sipauth/pkg/sip"
)

type fakeDecider struct {
	decision  authn.Decision
	got       *sip.Request
	malformed error
	clientIP  string
}

func (f *fakeDecider) Decide(ctx context.Context, req *sip.Request) authn.Decision {
	f.got = req
	if lc := logger.FromContext(ctx); lc != nil {
		f.clientIP = lc.ClientIP
	}
	return f.decision
}

func (f *fakeDecider) DecideMalformed(_ context.Context, req *sip.Request, cause error) authn.Decision {
	f.got = req
	f.malformed = cause
	return authn.Decision{Outcome: authn.Reject, StatusCode: sip.StatusForbidden, Reason: "Forbidden"}
}

func postAuthenticate(t *testing.T, h *AuthenticateHandler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/authenticate", strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:5060"
	w := httptest.NewRecorder()

	h.Authenticate(w, req)

	var out map[string]any
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestAuthenticate_Challenge(t *testing.T) {
	ch := &sip.Challenge{Realm: "example.com", Nonce: "abc", Opaque: "def", Algorithm: sip.AlgorithmMD5, QoP: sip.QoPAuth}
	decider := &fakeDecider{decision: authn.Decision{
		Outcome:    authn.Challenge,
		StatusCode: sip.StatusUnauthorized,
		Reason:     "Unauthorized",
		Challenge:  ch,
		Cause:      authn.CauseNoCredentials,
	}}

	w, out := postAuthenticate(t, NewAuthenticateHandler(decider), `{
		"method": "register",
		"from": "<sip:alice@example.com>",
		"to": "<sip:alice@example.com>",
		"call_id": "c1"
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "challenge", out["outcome"])
	assert.EqualValues(t, 401, out["status_code"])
	assert.Equal(t, ch.Header(), out["www_authenticate"])
	assert.NotContains(t, out, "Cause")

	require.NotNil(t, decider.got)
	assert.Equal(t, sip.REGISTER, decider.got.Method)
	assert.NotEmpty(t, decider.got.TraceID, "trace id generated")
	assert.Equal(t, decider.got.TraceID, out["trace_id"])
	assert.Equal(t, "192.0.2.10:5060", decider.clientIP)
}

func TestAuthenticate_KeepsTraceIDAndAuthorization(t *testing.T) {
	decider := &fakeDecider{decision: authn.Decision{Outcome: authn.PassThrough}}

	w, out := postAuthenticate(t, NewAuthenticateHandler(decider), `{
		"method": "REGISTER",
		"from": "<sip:alice@example.com>",
		"to": "<sip:alice@example.com>",
		"call_id": "c1",
		"trace_id": "t-42",
		"authorization": "Digest username=\"alice@example.com\", realm=\"example.com\", nonce=\"n\", uri=\"sip:example.com\", response=\"r\""
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pass_through", out["outcome"])
	assert.Equal(t, "t-42", out["trace_id"])
	assert.NotContains(t, out, "www_authenticate")
	require.NotNil(t, decider.got.Authorization)
	assert.Equal(t, "alice@example.com", decider.got.Authorization.Username)
}

func TestAuthenticate_MalformedAuthorization(t *testing.T) {
	decider := &fakeDecider{}

	w, out := postAuthenticate(t, NewAuthenticateHandler(decider), `{
		"method": "REGISTER",
		"from": "<sip:alice@example.com>",
		"to": "<sip:alice@example.com>",
		"call_id": "c1",
		"authorization": "Digest username"
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reject", out["outcome"])
	assert.ErrorIs(t, decider.malformed, sip.ErrMalformedAuthorization)
	assert.Nil(t, decider.got.Authorization)
	assert.Equal(t, "c1", decider.got.CallID)
}

func TestAuthenticate_BadBodies(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       "REGISTER sip:example.com SIP/2.0",
		"missing method": `{"from": "<sip:alice@example.com>"}`,
		"wrong type":     `{"method": 5}`,
	} {
		t.Run(name, func(t *testing.T) {
			decider := &fakeDecider{}
			w, _ := postAuthenticate(t, NewAuthenticateHandler(decider), body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ContentTypeProblemJSON, w.Header().Get("Content-Type"))
			assert.Nil(t, decider.got)
		})
	}
}
