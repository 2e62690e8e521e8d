package guest

import (
	"fmt"
	"strings"

	"github.com/wippyai/kissfft/errors"
)

// Variant selects an engine binary flavor.
type Variant uint8

const (
	// Baseline uses scalar f64 arithmetic only and runs on any runtime.
	Baseline Variant = iota
	// SIMD uses v128 f64x2 arithmetic in the complex kernel.
	SIMD
)

func (v Variant) String() string {
	switch v {
	case Baseline:
		return "baseline"
	case SIMD:
		return "simd"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// MarshalText encodes the variant by name.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Filename is the asset name used by file and HTTP resolvers.
func (v Variant) Filename() string {
	if v == SIMD {
		return "kissfft-simd.wasm"
	}
	return "kissfft.wasm"
}

// ParseVariant parses "baseline" (or "scalar") and "simd".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "baseline", "scalar":
		return Baseline, nil
	case "simd":
		return SIMD, nil
	default:
		return 0, errors.InvalidArgument("ParseVariant", "unknown engine variant %q", s)
	}
}

// Variants lists all variants, accelerated first.
func Variants() []Variant {
	return []Variant{SIMD, Baseline}
}
