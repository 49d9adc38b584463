package sip

// Request is the view of an inbound SIP request the decision engine needs.
type Request struct {
	Method     Method `json:"method"`
	RequestURI string `json:"request_uri,omitempty"`
	From       string `json:"from"`
	To         string `json:"to"`
	CallID     string `json:"call_id"`

	// TraceID correlates trace markers emitted for this request.
	TraceID string `json:"trace_id,omitempty"`

	// Authorization is nil when the request carries no Authorization header.
	Authorization *Authorization `json:"authorization,omitempty"`
}

// HasAuthorization reports whether an Authorization header is present.
func (r *Request) HasAuthorization() bool {
	return r.Authorization != nil
}

// IntegrityProtected reports whether the Authorization header carries a
// trusted integrity-protected flag.
func (r *Request) IntegrityProtected() bool {
	return r.Authorization.IntegrityProtected()
}

// ResyncToken returns the AKA resync token from the Authorization header.
func (r *Request) ResyncToken() string {
	return r.Authorization.ResyncToken()
}

// Username returns the Authorization username, or "".
func (r *Request) Username() string {
	if r.Authorization == nil {
		return ""
	}
	return r.Authorization.Username
}
