// Package bytesize parses the human readable sizes used for log and
// analytics file rotation ("100MB", "10Mi", "1GiB", "524288").
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes.
type ByteSize uint64

const (
	B ByteSize = 1

	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
	GiB ByteSize = 1 << 30
)

// suffixes are matched case-insensitively, longest first, so "mib" wins
// over "b".
var suffixes = []struct {
	name string
	mult ByteSize
}{
	{"kib", KiB}, {"mib", MiB}, {"gib", GiB},
	{"ki", KiB}, {"mi", MiB}, {"gi", GiB},
	{"kb", KB}, {"mb", MB}, {"gb", GB},
	{"k", KB}, {"m", MB}, {"g", GB},
	{"b", B},
}

// ParseByteSize parses a number with an optional binary (Ki, Mi, Gi) or
// decimal (K, M, G) unit. Fractions are allowed with a unit ("1.5Gi").
func ParseByteSize(s string) (ByteSize, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	if text == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	mult := B
	for _, suf := range suffixes {
		if strings.HasSuffix(text, suf.name) {
			mult = suf.mult
			text = strings.TrimSpace(strings.TrimSuffix(text, suf.name))
			break
		}
	}

	if n, err := strconv.ParseUint(text, 10, 64); err == nil {
		if n > math.MaxUint64/uint64(mult) {
			return 0, fmt.Errorf("byte size %q overflows", s)
		}
		return ByteSize(n) * mult, nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return ByteSize(f * float64(mult)), nil
}

// Megabytes returns the size in MiB, rounded up. Rotation libraries count
// in megabytes and treat zero as "use the default", so any non-zero size
// yields at least 1.
func (b ByteSize) Megabytes() int {
	return int((b + MiB - 1) / MiB)
}

// String renders the size with the largest binary unit that divides it
// exactly, so the result parses back to the same value.
func (b ByteSize) String() string {
	switch {
	case b == 0:
		return "0"
	case b%GiB == 0:
		return strconv.FormatUint(uint64(b/GiB), 10) + "Gi"
	case b%MiB == 0:
		return strconv.FormatUint(uint64(b/MiB), 10) + "Mi"
	case b%KiB == 0:
		return strconv.FormatUint(uint64(b/KiB), 10) + "Ki"
	default:
		return strconv.FormatUint(uint64(b), 10)
	}
}

// MarshalText implements encoding.TextMarshaler, so saved configs keep the
// unit form.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}
