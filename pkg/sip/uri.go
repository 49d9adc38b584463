package sip

import (
	"net"
	"strings"
)

// URI schemes understood by the identity helpers.
const (
	SchemeSIP  = "sip"
	SchemeSIPS = "sips"
	SchemeTel  = "tel"
)

// AddrSpec extracts the URI from a name-addr or addr-spec header value:
//
//	"Alice" <sip:alice@example.com;transport=tcp>;tag=1928  ->  sip:alice@example.com;transport=tcp
//	sip:alice@example.com;tag=1928                         ->  sip:alice@example.com
//
// Without angle brackets any ';' starts header parameters (RFC 3261 20.10).
func AddrSpec(header string) string {
	header = strings.TrimSpace(header)
	if open := strings.IndexByte(header, '<'); open >= 0 {
		if end := strings.IndexByte(header[open:], '>'); end > 0 {
			return strings.TrimSpace(header[open+1 : open+end])
		}
		return strings.TrimSpace(header[open+1:])
	}
	if semi := strings.IndexByte(header, ';'); semi >= 0 {
		header = header[:semi]
	}
	return header
}

// splitURI returns the lower-cased scheme and the part after the colon with
// URI parameters and headers removed.
func splitURI(uri string) (scheme, rest string) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok {
		return "", uri
	}
	if i := strings.IndexAny(rest, ";?"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(scheme), rest
}

// PublicIdentity returns the identity under registration in canonical
// scheme:user@host form, with URI parameters and headers stripped.
func PublicIdentity(header string) string {
	scheme, rest := splitURI(AddrSpec(header))
	if scheme == "" {
		return rest
	}
	return scheme + ":" + rest
}

// AddressOfRecord returns the address-of-record of a To header. It is the
// public identity of the target.
func AddressOfRecord(header string) string {
	return PublicIdentity(header)
}

// DefaultPrivateIdentity derives the private identity used when a client
// omits the Authorization username. The rule is fixed so it can be mirrored
// by subscriber provisioning:
//
//   - sip:/sips: URIs give user@host; scheme, port, URI parameters and
//     headers are dropped (sip:alice@example.com:5060;transport=tcp ->
//     alice@example.com).
//   - tel: URIs give the number without parameters
//     (tel:+15551234;phone-context=x -> +15551234).
//   - URIs in any other scheme give everything after the scheme.
func DefaultPrivateIdentity(header string) string {
	scheme, rest := splitURI(AddrSpec(header))
	switch scheme {
	case SchemeSIP, SchemeSIPS:
		user, host, found := strings.Cut(rest, "@")
		if !found {
			return stripPort(rest)
		}
		return user + "@" + stripPort(host)
	default:
		return rest
	}
}

// User returns the user part of a SIP or tel URI, used as the calling and
// called party number in trace markers.
func User(header string) string {
	scheme, rest := splitURI(AddrSpec(header))
	switch scheme {
	case SchemeSIP, SchemeSIPS:
		if user, _, found := strings.Cut(rest, "@"); found {
			return user
		}
		return ""
	default:
		return rest
	}
}

// Host returns the host part of a SIP URI without port.
func Host(header string) string {
	_, rest := splitURI(AddrSpec(header))
	if _, host, found := strings.Cut(rest, "@"); found {
		return stripPort(host)
	}
	return stripPort(rest)
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
