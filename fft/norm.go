package fft

import (
	"fmt"
	"math"
	"strings"

	"github.com/wippyai/kissfft/errors"
)

// Norm selects how forward and inverse results are scaled.
type Norm uint8

const (
	// NormBackward leaves forward results unscaled and scales inverse
	// results by 1/T, so Inverse(Forward(x)) == x.
	NormBackward Norm = iota
	// NormOrtho scales both directions by 1/sqrt(T).
	NormOrtho
	// NormNone returns raw engine results; Inverse(Forward(x)) == T*x.
	NormNone
)

func (n Norm) String() string {
	switch n {
	case NormBackward:
		return "backward"
	case NormOrtho:
		return "ortho"
	case NormNone:
		return "none"
	default:
		return fmt.Sprintf("norm(%d)", uint8(n))
	}
}

// ParseNorm parses "backward", "ortho" or "none".
func ParseNorm(s string) (Norm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "backward":
		return NormBackward, nil
	case "ortho":
		return NormOrtho, nil
	case "none":
		return NormNone, nil
	default:
		return NormBackward, errors.InvalidArgument("ParseNorm", "unknown normalization %q", s)
	}
}

// scales returns the forward and inverse factors for a transform of total
// elements.
func (n Norm) scales(total int) (fwd, inv float32) {
	switch n {
	case NormNone:
		return 1, 1
	case NormOrtho:
		s := float32(1 / math.Sqrt(float64(total)))
		return s, s
	default:
		return 1, float32(1 / float64(total))
	}
}

func scale(buf []float32, s float32) {
	if s == 1 {
		return
	}
	for i := range buf {
		buf[i] *= s
	}
}
