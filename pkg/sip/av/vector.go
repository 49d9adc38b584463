// Package av defines authentication vectors: the credential material issued
// for one challenge round-trip, either a Digest HA1 or an AKA
// challenge/response/key set.
package av

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidVector is returned when a vector has neither or both variants.
var ErrInvalidVector = errors.New("av: vector must hold exactly one of digest or aka")

// Kind names a vector variant.
type Kind string

const (
	KindDigest Kind = "digest"
	KindAKA    Kind = "aka"
)

// Digest is pre-hashed password material, HA1 = MD5(username:realm:password).
type Digest struct {
	HA1 string `json:"ha1"`
	QoP string `json:"qop,omitempty"`
}

// AKA is a 3GPP AKA quintet as delivered by the HSS. Challenge is the
// base64 RAND||AUTN used as nonce, Response the expected XRES.
type AKA struct {
	Challenge    string `json:"challenge"`
	Response     string `json:"response"`
	CryptKey     string `json:"cryptkey"`
	IntegrityKey string `json:"integritykey"`
}

// Vector is a closed variant: exactly one of Digest or AKA is set. Build it
// with NewDigest or NewAKA, or by decoding JSON, and branch on Kind.
type Vector struct {
	digest *Digest
	aka    *AKA
}

// NewDigest returns a Digest vector.
func NewDigest(d Digest) *Vector {
	return &Vector{digest: &d}
}

// NewAKA returns an AKA vector.
func NewAKA(a AKA) *Vector {
	return &Vector{aka: &a}
}

// Kind reports which variant the vector holds.
func (v *Vector) Kind() Kind {
	if v.aka != nil {
		return KindAKA
	}
	return KindDigest
}

// Digest returns the Digest variant. ok is false for AKA vectors.
func (v *Vector) Digest() (d Digest, ok bool) {
	if v.digest == nil {
		return Digest{}, false
	}
	return *v.digest, true
}

// AKA returns the AKA variant. ok is false for Digest vectors.
func (v *Vector) AKA() (a AKA, ok bool) {
	if v.aka == nil {
		return AKA{}, false
	}
	return *v.aka, true
}

// Validate checks the variant invariant and the fields each variant needs.
func (v *Vector) Validate() error {
	switch {
	case v == nil, v.digest == nil && v.aka == nil, v.digest != nil && v.aka != nil:
		return ErrInvalidVector
	case v.digest != nil && v.digest.HA1 == "":
		return fmt.Errorf("%w: digest vector has no ha1", ErrInvalidVector)
	case v.aka != nil && (v.aka.Challenge == "" || v.aka.Response == ""):
		return fmt.Errorf("%w: aka vector needs challenge and response", ErrInvalidVector)
	}
	return nil
}

// wire is the HSS JSON shape: {"digest": {...}} or {"aka": {...}}.
type wire struct {
	Digest *Digest `json:"digest,omitempty"`
	AKA    *AKA    `json:"aka,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v *Vector) MarshalJSON() ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(wire{Digest: v.digest, AKA: v.aka})
}

// UnmarshalJSON implements json.Unmarshaler and rejects documents that do
// not hold exactly one variant.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded := Vector{digest: w.Digest, aka: w.AKA}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*v = decoded
	return nil
}
