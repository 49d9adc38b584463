package authn

import (
	"fmt"

	"github.com/marmos91/sipauth/pkg/sip"
)

// Outcome is what the signaling layer does with a request.
type Outcome int

const (
	// PassThrough forwards the request unchanged.
	PassThrough Outcome = iota
	// Challenge answers 401 with a WWW-Authenticate header.
	Challenge
	// Reject answers with StatusCode and no challenge.
	Reject
	// Discard drops the request without any response. Only used for ACK.
	Discard
)

var outcomeNames = map[Outcome]string{
	PassThrough: "pass_through",
	Challenge:   "challenge",
	Reject:      "reject",
	Discard:     "discard",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for outcome, name := range outcomeNames {
		if name == string(text) {
			*o = outcome
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Causes recorded on decisions. They reach logs and metrics, never the
// client.
const (
	CauseNotAuthenticated   = "method_not_authenticated"
	CauseIntegrityProtected = "integrity_protected"
	CauseAuthenticated      = "authenticated"
	CauseNoCredentials      = "no_credentials"
	CauseUnknownIdentity    = "unknown_identity"
	CauseBuildFailure       = "build_failure"
	CauseUnchallengeable    = "unchallengeable_method"
)

// Decision is the single result of Decide.
type Decision struct {
	Outcome    Outcome `json:"outcome"`
	StatusCode int     `json:"status_code,omitempty"`

	// Reason is the SIP reason phrase matching StatusCode.
	Reason string `json:"reason,omitempty"`

	// Challenge is set only for the Challenge outcome.
	Challenge *sip.Challenge `json:"challenge,omitempty"`

	// Cause is the internal classification behind the outcome.
	Cause string `json:"-"`
}

func passThrough(cause string) Decision {
	return Decision{Outcome: PassThrough, Cause: cause}
}

func challenge(ch *sip.Challenge) Decision {
	return Decision{
		Outcome:    Challenge,
		StatusCode: sip.StatusUnauthorized,
		Reason:     sip.StatusText(sip.StatusUnauthorized),
		Challenge:  ch,
		Cause:      CauseNoCredentials,
	}
}

func reject(status int, cause string) Decision {
	return Decision{
		Outcome:    Reject,
		StatusCode: status,
		Reason:     sip.StatusText(status),
		Cause:      cause,
	}
}

func discard(cause string) Decision {
	return Decision{Outcome: Discard, Cause: cause}
}
