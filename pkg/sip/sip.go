// Package sip holds the parts of the SIP message model the authentication
// front-end works with: request methods and status codes, the parsed
// Authorization header, identity URIs and WWW-Authenticate challenges.
//
// Parsing and transaction handling of full SIP messages belong to the
// signaling stack in front of this service; requests reach it as an
// already decoded Request.
package sip

import "strings"

// Method is a SIP request method.
type Method string

const (
	REGISTER  Method = "REGISTER"
	INVITE    Method = "INVITE"
	ACK       Method = "ACK"
	CANCEL    Method = "CANCEL"
	BYE       Method = "BYE"
	OPTIONS   Method = "OPTIONS"
	SUBSCRIBE Method = "SUBSCRIBE"
	NOTIFY    Method = "NOTIFY"
	MESSAGE   Method = "MESSAGE"
)

// ParseMethod normalizes a method token. SIP methods are case-sensitive on
// the wire but every method this service reasons about is upper case.
func ParseMethod(s string) Method {
	return Method(strings.ToUpper(strings.TrimSpace(s)))
}

func (m Method) String() string { return string(m) }

// Status codes produced by the authentication tier.
const (
	StatusOK                  = 200
	StatusUnauthorized        = 401
	StatusForbidden           = 403
	StatusServerInternalError = 500
)

var statusText = map[int]string{
	StatusOK:                  "OK",
	StatusUnauthorized:        "Unauthorized",
	StatusForbidden:           "Forbidden",
	StatusServerInternalError: "Server Internal Error",
}

// StatusText returns the reason phrase for a status code, or "" if unknown.
func StatusText(code int) string {
	return statusText[code]
}
