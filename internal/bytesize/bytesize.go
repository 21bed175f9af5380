// Package bytesize parses and prints human-readable byte quantities.
// Configuration fields such as the chunk size and the file cache limit
// accept values like "4Mi", "512Ki", "100MB", or a plain byte count.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a byte count that unmarshals from strings like "4Mi",
// "100MB", or "1048576". Binary suffixes (Ki, Mi, Gi, Ti, with or
// without a trailing B) multiply by 1024; decimal suffixes (K, M, G,
// T and their *B forms) multiply by 1000.
type ByteSize uint64

// Decimal (×1000) and binary (×1024) units.
const (
	B  ByteSize = 1
	KB ByteSize = 1000 * B
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024 * B
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// sizePattern splits a quantity into its number and unit suffix.
var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var units = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB,
	"m": MB, "mb": MB,
	"g": GB, "gb": GB,
	"t": TB, "tb": TB,
	"ki": KiB, "kib": KiB,
	"mi": MiB, "mib": MiB,
	"gi": GiB, "gib": GiB,
	"ti": TiB, "tib": TiB,
}

// ParseByteSize converts a string like "4Mi" or "1024" into a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	multiplier, ok := units[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
	}

	// Fractional quantities like "1.5Mi" go through float math; whole
	// numbers stay integral so large counts keep full precision.
	if strings.Contains(m[1], ".") {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size number: %q", m[1])
		}
		return ByteSize(f * float64(multiplier)), nil
	}

	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %q", m[1])
	}
	return ByteSize(n) * multiplier, nil
}

// UnmarshalText lets ByteSize fields decode straight from config files
// and environment variables.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// String renders the size with the largest binary unit that fits,
// e.g. "4.00MiB" or "512B".
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// Uint64 returns the raw byte count.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 returns the byte count as an int64 for APIs that size things
// signed. Counts past 1<<63-1 wrap.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
