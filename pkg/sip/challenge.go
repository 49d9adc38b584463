package sip

import (
	"sort"
	"strconv"
	"strings"
)

// Digest algorithms.
const (
	AlgorithmMD5      = "MD5"
	AlgorithmAKAv1MD5 = "AKAv1-MD5"
)

// QoPAuth is the only quality of protection this service offers.
const QoPAuth = "auth"

// AKA cipher and integrity key parameters of a WWW-Authenticate challenge
// (3GPP TS 24.229 7.2A.1).
const (
	ParamCK = "ck"
	ParamIK = "ik"
)

// Challenge is the content of a WWW-Authenticate header sent with a 401.
type Challenge struct {
	Realm     string            `json:"realm"`
	Nonce     string            `json:"nonce"`
	Opaque    string            `json:"opaque,omitempty"`
	Algorithm string            `json:"algorithm"`
	QoP       string            `json:"qop,omitempty"`
	Stale     bool              `json:"stale"`
	Params    map[string]string `json:"params,omitempty"`
}

// Header renders the WWW-Authenticate value. Extension parameters follow
// the standard ones in name order.
func (c *Challenge) Header() string {
	parts := []string{
		formatParam(ParamRealm, c.Realm, nil),
		formatParam(ParamNonce, c.Nonce, nil),
	}
	if c.Opaque != "" {
		parts = append(parts, formatParam(ParamOpaque, c.Opaque, nil))
	}
	parts = append(parts, ParamAlgorithm+"="+c.Algorithm)
	if c.QoP != "" {
		parts = append(parts, formatParam(ParamQoP, c.QoP, nil))
	}
	parts = append(parts, "stale="+strconv.FormatBool(c.Stale))

	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, formatParam(name, c.Params[name], nil))
	}

	return "Digest " + strings.Join(parts, ", ")
}
