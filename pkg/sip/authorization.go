package sip

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformedAuthorization is returned when an Authorization header cannot
// be parsed into a scheme and parameter list.
var ErrMalformedAuthorization = errors.New("sip: malformed authorization header")

// Authorization parameter names.
const (
	ParamUsername           = "username"
	ParamRealm              = "realm"
	ParamNonce              = "nonce"
	ParamURI                = "uri"
	ParamResponse           = "response"
	ParamAlgorithm          = "algorithm"
	ParamQoP                = "qop"
	ParamNC                 = "nc"
	ParamCNonce             = "cnonce"
	ParamOpaque             = "opaque"
	ParamIntegrityProtected = "integrity-protected"
	ParamAUTS               = "auts"
	ParamAUTN               = "autn"
)

// Trusted values of the integrity-protected parameter (3GPP TS 24.229).
var integrityProtectedValues = []string{"yes", "tls-yes", "ip-assoc-yes"}

// Authorization is a parsed Authorization header.
//
// Params holds every parameter by lower-cased name, including the ones
// mirrored into the named fields, so extension parameters are looked up by
// key rather than by walking the header.
type Authorization struct {
	Scheme    string
	Username  string
	Realm     string
	Nonce     string
	URI       string
	Response  string
	Algorithm string
	QoP       string
	NC        string
	CNonce    string
	Opaque    string
	Params    map[string]string
}

// ParseAuthorization parses a header value such as
//
//	Digest username="alice@example.com", realm="example.com", nonce="...", response="..."
func ParseAuthorization(header string) (*Authorization, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedAuthorization)
	}

	scheme, rest, _ := strings.Cut(header, " ")
	if scheme == "" || strings.Contains(scheme, "=") {
		return nil, fmt.Errorf("%w: missing scheme", ErrMalformedAuthorization)
	}

	params := make(map[string]string)
	for _, part := range splitHeader(rest) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q has no value", ErrMalformedAuthorization, part)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("%w: empty parameter name", ErrMalformedAuthorization)
		}
		if _, dup := params[name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrMalformedAuthorization, name)
		}
		params[name] = unquote(strings.TrimSpace(value))
	}

	a := &Authorization{
		Scheme:    scheme,
		Username:  params[ParamUsername],
		Realm:     params[ParamRealm],
		Nonce:     params[ParamNonce],
		URI:       params[ParamURI],
		Response:  params[ParamResponse],
		Algorithm: params[ParamAlgorithm],
		QoP:       params[ParamQoP],
		NC:        params[ParamNC],
		CNonce:    params[ParamCNonce],
		Opaque:    params[ParamOpaque],
		Params:    params,
	}
	return a, nil
}

// Param returns the value of a parameter by case-insensitive name.
func (a *Authorization) Param(name string) string {
	if a == nil {
		return ""
	}
	return a.Params[strings.ToLower(name)]
}

// HasResponse reports whether the header carries a non-empty response.
func (a *Authorization) HasResponse() bool {
	return a != nil && a.Response != ""
}

// IntegrityProtected reports whether a trusted intermediary marked the
// request as arriving over a protected association.
func (a *Authorization) IntegrityProtected() bool {
	v := a.Param(ParamIntegrityProtected)
	if v == "" {
		return false
	}
	for _, trusted := range integrityProtectedValues {
		if strings.EqualFold(v, trusted) {
			return true
		}
	}
	return false
}

// ResyncToken returns the AKA resynchronization token carried in the auts
// parameter, falling back to autn. Empty when neither is present.
func (a *Authorization) ResyncToken() string {
	if v := a.Param(ParamAUTS); v != "" {
		return v
	}
	return a.Param(ParamAUTN)
}

// String renders the header value. Parameters are emitted in a stable order.
func (a *Authorization) String() string {
	if a == nil {
		return ""
	}
	names := make([]string, 0, len(a.Params))
	for name := range a.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, formatParam(name, a.Params[name], authorizationTokens))
	}
	return a.Scheme + " " + strings.Join(parts, ", ")
}

// MarshalText implements encoding.TextMarshaler.
func (a *Authorization) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so decoded requests
// carry the raw header and get it parsed in one step.
func (a *Authorization) UnmarshalText(text []byte) error {
	parsed, err := ParseAuthorization(string(text))
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

// splitHeader splits on commas that are not inside a quoted string.
func splitHeader(header string) []string {
	var parts []string
	var b strings.Builder
	inQuotes := false
	escaped := false

	for _, r := range header {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inQuotes:
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			parts = append(parts, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

func unquote(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}
	v = v[1 : len(v)-1]
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	escaped := false
	for _, r := range v {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// Tokens that RFC 3261 leaves unquoted in an Authorization header.
var authorizationTokens = map[string]bool{
	ParamAlgorithm: true,
	ParamNC:        true,
	ParamQoP:       true,
}

func formatParam(name, value string, tokens map[string]bool) string {
	if tokens[name] {
		return name + "=" + value
	}
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return name + `="` + value + `"`
}
