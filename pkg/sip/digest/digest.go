// Package digest verifies RFC 2617 / RFC 3261 Digest responses, including
// AKAv1-MD5 (RFC 3310), against credentials resolved through a
// CredentialLookup callback.
//
// The verifier owns the HA1/HA2/response arithmetic. Where credentials come
// from, and what happens to them after a lookup, is up to the lookup.
package digest

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/sipauth/pkg/sip"
)

// ErrCredentialNotFound is returned by a CredentialLookup that holds no
// credential for the account and nonce.
var ErrCredentialNotFound = errors.New("digest: credential not found")

// CredentialKind tells the verifier how to derive HA1 from Credential.Data.
type CredentialKind int

const (
	// PlainPassword credentials are hashed into HA1 by the verifier. AKA uses
	// this kind with the expected response (XRES) as the password.
	PlainPassword CredentialKind = iota
	// HA1 credentials are already MD5(username:realm:password).
	HA1
)

func (k CredentialKind) String() string {
	if k == HA1 {
		return "ha1"
	}
	return "plain"
}

// Credential is verifiable material for one account.
type Credential struct {
	Kind CredentialKind
	Data string
}

// CredentialLookup resolves the credential for an account, realm and the
// nonce presented in the request. It is called at most once per Verify.
type CredentialLookup interface {
	Credential(ctx context.Context, account, realm, nonce string) (Credential, error)
}

// LookupFunc adapts a function to CredentialLookup.
type LookupFunc func(ctx context.Context, account, realm, nonce string) (Credential, error)

// Credential calls f.
func (f LookupFunc) Credential(ctx context.Context, account, realm, nonce string) (Credential, error) {
	return f(ctx, account, realm, nonce)
}

// Reason classifies the outcome of a verification.
type Reason int

const (
	ReasonOK Reason = iota
	// ReasonNoAuth: no response, or credentials for a different realm.
	ReasonNoAuth
	// ReasonNonceNotFound: the lookup holds nothing for the nonce; it was
	// never issued, already used, or expired.
	ReasonNonceNotFound
	// ReasonInvalidResponse: the response does not match the credential.
	ReasonInvalidResponse
	// ReasonMalformed: unsupported scheme, algorithm or qop, or missing
	// parameters the qop requires.
	ReasonMalformed
	// ReasonBackend: the lookup failed for any other reason.
	ReasonBackend
)

var reasonNames = map[Reason]string{
	ReasonOK:              "ok",
	ReasonNoAuth:          "no_auth",
	ReasonNonceNotFound:   "nonce_not_found",
	ReasonInvalidResponse: "invalid_response",
	ReasonMalformed:       "malformed",
	ReasonBackend:         "backend",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Result is the outcome of Verify. Status is the SIP status a caller should
// answer with when it rejects on this result.
type Result struct {
	Reason Reason
	Status int
	Err    error
}

// OK reports whether the response verified.
func (r Result) OK() bool { return r.Reason == ReasonOK }

// NoCredentials reports whether the request effectively carried no usable
// credentials, so a fresh challenge is the right answer.
func (r Result) NoCredentials() bool {
	return r.Reason == ReasonNoAuth || r.Reason == ReasonNonceNotFound
}

func result(reason Reason, status int, err error) Result {
	return Result{Reason: reason, Status: status, Err: err}
}

// Verifier checks Digest responses for a single realm.
type Verifier struct {
	realm  string
	lookup CredentialLookup
}

// NewVerifier returns a verifier for realm backed by lookup.
func NewVerifier(realm string, lookup CredentialLookup) *Verifier {
	return &Verifier{realm: realm, lookup: lookup}
}

// Realm returns the realm this verifier accepts.
func (v *Verifier) Realm() string { return v.realm }

// Verify checks the Authorization header of a request with the given method.
func (v *Verifier) Verify(ctx context.Context, method sip.Method, a *sip.Authorization) Result {
	if !a.HasResponse() {
		return result(ReasonNoAuth, sip.StatusUnauthorized, nil)
	}
	if !strings.EqualFold(a.Scheme, "Digest") {
		return result(ReasonMalformed, sip.StatusForbidden, fmt.Errorf("unsupported scheme %q", a.Scheme))
	}
	if a.Realm != v.realm {
		return result(ReasonNoAuth, sip.StatusUnauthorized, fmt.Errorf("realm %q not served", a.Realm))
	}

	switch {
	case a.Algorithm == "",
		strings.EqualFold(a.Algorithm, sip.AlgorithmMD5),
		strings.EqualFold(a.Algorithm, sip.AlgorithmAKAv1MD5):
	default:
		return result(ReasonMalformed, sip.StatusForbidden, fmt.Errorf("unsupported algorithm %q", a.Algorithm))
	}

	switch a.QoP {
	case "":
	case sip.QoPAuth:
		if a.NC == "" || a.CNonce == "" {
			return result(ReasonMalformed, sip.StatusForbidden, errors.New("qop=auth requires nc and cnonce"))
		}
	default:
		return result(ReasonMalformed, sip.StatusForbidden, fmt.Errorf("unsupported qop %q", a.QoP))
	}

	cred, err := v.lookup.Credential(ctx, a.Username, a.Realm, a.Nonce)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return result(ReasonNonceNotFound, sip.StatusUnauthorized, err)
		}
		return result(ReasonBackend, sip.StatusForbidden, err)
	}

	ha1 := cred.Data
	if cred.Kind == PlainPassword {
		ha1 = ComputeHA1(a.Username, a.Realm, cred.Data)
	}

	expected := ComputeResponse(ha1, a.Nonce, a.NC, a.CNonce, a.QoP, method.String(), a.URI)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(a.Response))) != 1 {
		return result(ReasonInvalidResponse, sip.StatusForbidden, nil)
	}
	return result(ReasonOK, sip.StatusOK, nil)
}

// ComputeHA1 returns MD5(username:realm:password) in lower-case hex.
func ComputeHA1(username, realm, password string) string {
	return md5Hex(username + ":" + realm + ":" + password)
}

// ComputeResponse returns the request-digest for qop "auth" or no qop.
func ComputeResponse(ha1, nonce, nc, cnonce, qop, method, uri string) string {
	ha2 := md5Hex(method + ":" + uri)
	if qop == "" {
		return md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}
	return md5Hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
